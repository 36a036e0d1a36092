package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/segfetch/internal/output"
	"github.com/tanq16/segfetch/internal/scheduler"
	"github.com/tanq16/segfetch/internal/utils"
)

func newBatchCmd() *cobra.Command {
	var numJobs int

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Fetch every link listed in a YAML file",
		Long: `Fetch every link listed in a YAML file. Each entry takes a link, an
optional output path (op) and an optional worker count:

  - link: https://example.com/a.iso
    op: isos/a.iso
  - link: https://example.com/b.iso
    workers: 4`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := appConfig
			entries, err := scheduler.ReadBatchFile(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(entries) == 0 {
				output.PrintError("No valid jobs found in the batch file")
				os.Exit(1)
			}
			cfg.Fetch.Workers = scheduler.ConnectionsPerJob(cfg.Fetch.Workers, numJobs)
			jobs := scheduler.NewJobs(entries, cfg.Job)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			output.PrintHeader(fmt.Sprintf("Fetching %d link(s), %d at a time", len(jobs), numJobs))
			output.PrintInfo(fmt.Sprintf("%d range worker(s) per link", cfg.Fetch.Workers))
			reports := scheduler.Run(ctx, jobs, numJobs, func(ctx context.Context, job scheduler.Job) scheduler.Report {
				return fetchOne(ctx, cfg, job.Fetch, job.Destination, false)
			})
			failed := 0
			for _, r := range reports {
				printReport(r)
				if r.Err != nil {
					failed++
				}
			}
			fmt.Println()
			fmt.Printf("%s  %s\n",
				output.FSuccess(fmt.Sprintf("%s %d fetched", output.StyleSymbols["pass"], len(reports)-failed)),
				output.FError(fmt.Sprintf("%s %d failed", output.StyleSymbols["fail"], failed)),
			)
			if failed > 0 {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().IntVarP(&numJobs, "parallel", "n", 1, fmt.Sprintf("Number of links fetched in parallel (total connections capped at %d)", utils.MaxConnections))
	return cmd
}
