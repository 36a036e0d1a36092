package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/segfetch/internal/utils"
)

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	content := `- link: https://example.com/a.bin
  op: a.bin
- link: ""
- link: https://example.com/b.bin
  workers: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadBatchFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("exp 2 entries, got %d", len(entries))
	}
	if entries[0].OutputPath != "a.bin" || entries[1].Workers != 2 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestConnectionsPerJob(t *testing.T) {
	testCases := []struct {
		connections, jobs, exp int
	}{
		{8, 1, 8},
		{8, 8, 8},
		{16, 8, 8},
		{10, 100, 1},
		{4, 0, 4},
	}
	for _, tc := range testCases {
		if got := ConnectionsPerJob(tc.connections, tc.jobs); got != tc.exp {
			t.Errorf("ConnectionsPerJob(%d, %d) = %d, want %d", tc.connections, tc.jobs, got, tc.exp)
		}
	}
}

func TestNewJobs_AppliesOverrides(t *testing.T) {
	base := func(url string) utils.FetchJob {
		return utils.FetchJob{URL: url, Workers: 4, BufferSize: 1024}
	}
	jobs := NewJobs([]utils.BatchEntry{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b", Workers: 2, OutputPath: "b.out"},
	}, base)

	if len(jobs) != 2 {
		t.Fatalf("exp 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Fetch.Workers != 4 || jobs[1].Fetch.Workers != 2 {
		t.Errorf("worker override not applied: %+v", jobs)
	}
	if jobs[1].Destination != "b.out" {
		t.Errorf("exp destination b.out, got %q", jobs[1].Destination)
	}
	if jobs[0].ID == "" || jobs[0].ID == jobs[1].ID {
		t.Errorf("exp distinct job IDs, got %q and %q", jobs[0].ID, jobs[1].ID)
	}
}

func TestRun_ReportsInJobOrder(t *testing.T) {
	jobs := make([]Job, 6)
	for i := range jobs {
		jobs[i] = Job{ID: string(rune('a' + i)), Fetch: utils.FetchJob{URL: "https://example.com/" + string(rune('a'+i))}}
	}
	wantErr := errors.New("boom")

	var running, peak atomic.Int32
	reports := Run(t.Context(), jobs, 2, func(ctx context.Context, job Job) Report {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		if job.ID == "c" {
			return Report{Err: wantErr}
		}
		return Report{Bytes: len(job.ID)}
	})

	if len(reports) != len(jobs) {
		t.Fatalf("exp %d reports, got %d", len(jobs), len(reports))
	}
	for i, r := range reports {
		if r.ID != jobs[i].ID || r.URL != jobs[i].Fetch.URL {
			t.Errorf("report %d out of order: %+v", i, r)
		}
	}
	if !errors.Is(reports[2].Err, wantErr) {
		t.Errorf("exp report c to carry %v, got %v", wantErr, reports[2].Err)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("max concurrent was %d, want <= 2", p)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	reports := Run(ctx, []Job{{ID: "x"}}, 1, func(ctx context.Context, job Job) Report {
		t.Error("runner should not be called after cancellation")
		return Report{}
	})
	if !errors.Is(reports[0].Err, context.Canceled) {
		t.Errorf("exp context.Canceled, got %v", reports[0].Err)
	}
}
