package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tanq16/segfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

// Job is one batch entry resolved into a fetch job and a destination.
type Job struct {
	ID          string
	Fetch       utils.FetchJob
	Destination string
}

type Report struct {
	ID          string
	URL         string
	Destination string
	Bytes       int
	Elapsed     time.Duration
	Warnings    int
	Err         error
}

// Runner performs a job end to end and fills in its report.
type Runner func(ctx context.Context, job Job) Report

// ReadBatchFile parses a YAML list of entries.
func ReadBatchFile(path string) ([]utils.BatchEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading batch file: %w", err)
	}
	var entries []utils.BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	valid := entries[:0]
	for _, entry := range entries {
		if entry.URL == "" {
			logger := utils.GetLogger("scheduler")
			logger.Warn().Msg("empty link found in batch file, skipping")
			continue
		}
		valid = append(valid, entry)
	}
	return valid, nil
}

// ConnectionsPerJob keeps numJobs*connections under utils.MaxConnections.
func ConnectionsPerJob(connections, numJobs int) int {
	if numJobs < 1 {
		numJobs = 1
	}
	if numJobs*connections > utils.MaxConnections {
		return max(utils.MaxConnections/numJobs, 1)
	}
	return connections
}

// NewJobs assigns IDs and resolves per-entry overrides on top of base.
func NewJobs(entries []utils.BatchEntry, base func(url string) utils.FetchJob) []Job {
	jobs := make([]Job, 0, len(entries))
	for _, entry := range entries {
		fetch := base(entry.URL)
		if entry.Workers > 0 {
			fetch.Workers = entry.Workers
		}
		jobs = append(jobs, Job{
			ID:          uuid.New().String(),
			Fetch:       fetch,
			Destination: entry.OutputPath,
		})
	}
	return jobs
}

// Run executes jobs on numWorkers goroutines and returns the reports in
// job order.
func Run(ctx context.Context, jobs []Job, numWorkers int, runner Runner) []Report {
	if numWorkers < 1 {
		numWorkers = 1
	}
	type indexed struct {
		index int
		job   Job
	}
	jobCh := make(chan indexed, len(jobs))
	for i, job := range jobs {
		jobCh <- indexed{index: i, job: job}
	}
	close(jobCh)

	reports := make([]Report, len(jobs))
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobCh {
				if err := ctx.Err(); err != nil {
					reports[item.index] = Report{ID: item.job.ID, URL: item.job.Fetch.URL, Err: err}
					continue
				}
				logger := utils.GetLogger("scheduler")
				logger.Debug().Str("id", item.job.ID).Msgf("starting %s", item.job.Fetch.URL)
				report := runner(ctx, item.job)
				report.ID = item.job.ID
				report.URL = item.job.Fetch.URL
				reports[item.index] = report
			}
		}()
	}
	wg.Wait()
	return reports
}
