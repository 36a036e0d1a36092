package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/tanq16/segfetch/internal/config"
	rangehttp "github.com/tanq16/segfetch/internal/downloaders/http"
	"github.com/tanq16/segfetch/internal/output"
	"github.com/tanq16/segfetch/internal/scheduler"
	"github.com/tanq16/segfetch/internal/sink"
	"github.com/tanq16/segfetch/internal/utils"
	"go.opentelemetry.io/otel"
)

// fetchOne runs a single job through the orchestrator and hands the payload
// to the sink. dest may be empty, in which case a name is inferred.
func fetchOne(ctx context.Context, cfg config.Config, job utils.FetchJob, dest string, showProgress bool) scheduler.Report {
	report := scheduler.Report{URL: job.URL}
	client, err := utils.NewSegHTTPClient(cfg.ClientConfig(job.Workers))
	if err != nil {
		report.Err = err
		return report
	}

	opts := []rangehttp.Option{rangehttp.WithTracer(otel.Tracer("github.com/tanq16/segfetch"))}
	var bar *output.ProgressBar
	if showProgress {
		bar = output.NewProgressBar(os.Stdout, output.FDebug("fetching"))
		opts = append(opts, rangehttp.WithProgress(bar.Update))
	}
	outcome, err := rangehttp.NewOrchestrator(client, opts...).Execute(ctx, job)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		report.Err = err
		return report
	}

	if dest == "" {
		dest = rangehttp.InferFileName(job.URL, outcome.FileName)
	}
	written, err := sink.NewWriter(cfg.AWSProfile).Write(ctx, dest, outcome.Payload)
	if err != nil {
		report.Err = err
		return report
	}
	report.Destination = written
	report.Bytes = len(outcome.Payload)
	report.Elapsed = outcome.Elapsed
	report.Warnings = len(outcome.Warnings)
	return report
}

func printReport(r scheduler.Report) {
	if r.Err != nil {
		output.PrintError(fmt.Sprintf("%s %s %v", r.URL, output.StyleSymbols["arrow"], r.Err))
		return
	}
	output.PrintSuccess(fmt.Sprintf("%s %s %s", r.URL, output.StyleSymbols["arrow"], r.Destination))
	output.PrintDetail(fmt.Sprintf("  %s in %s (%s)",
		utils.FormatBytes(int64(r.Bytes)),
		utils.FormatElapsed(r.Elapsed),
		utils.FormatSpeed(int64(r.Bytes), r.Elapsed),
	))
	if r.Warnings > 0 {
		output.PrintWarning(fmt.Sprintf("  %d range(s) reported an unexpected length", r.Warnings))
	}
}
