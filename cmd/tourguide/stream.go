package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/bridges/robot"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
)

func newStreamCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stream <file>...",
		Short: "Upload audio files to the robot, in order",
		Long:  "stream connects to the robot, uploads each file as a chunked audio stream and waits for the robot to confirm it was saved. The first failed file stops the upload.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := checkRegularFile(path); err != nil {
					return err
				}
			}

			return withStore(cmd, func(ctx context.Context, cfg *config.Config, st *store) error {
				log := commandLogger(cmd, cfg)

				stack, err := newRobotStack(cfg, log, nil)
				if err != nil {
					return err
				}
				defer stack.shutdown(log)

				if err := stack.connectAndWait(ctx); err != nil {
					return err
				}

				reports, err := stack.streamer.StreamFiles(ctx, args)
				st.record(ctx, log, audit.Entry{
					Action:  audit.ActionStream,
					Source:  audit.SourceCLI,
					Outcome: audit.OutcomeOf(err),
					Details: map[string]any{"files": len(args), "sent": len(reports)},
				})
				if outErr := writeReports(cmd.OutOrStdout(), reports, asJSON); outErr != nil && err == nil {
					err = outErr
				}
				return err
			})
		},
	}
	addJSONFlag(cmd.Flags(), &asJSON, "stream reports")
	return cmd
}

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("audio file %s is not a regular file", path)
	}
	return nil
}

func writeReports(w io.Writer, reports []robot.StreamReport, asJSON bool) error {
	if asJSON {
		return writeJSON(w, reports)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tBYTES\tCHUNKS\tSAVED\tDURATION")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\t%s\n",
			r.FileName, r.TotalBytes, r.ChunksSent, r.Acknowledged, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}
