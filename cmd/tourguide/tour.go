package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/museum-robotics/tourguide-core/internal/audit"
	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
	"github.com/museum-robotics/tourguide-core/internal/tour"
)

func newTourCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour",
		Short: "Manage tours and start them on the robot",
	}
	cmd.AddCommand(
		newTourListCmd(),
		newTourShowCmd(),
		newTourImportCmd(),
		newTourSetAudioCmd(),
		newTourDeleteCmd(),
		newTourStartCmd(),
	)
	return cmd
}

// withTours opens the tour database for the duration of fn.
func withTours(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, repo tour.Repository) error) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config, st *store) error {
		return fn(ctx, cfg, st.tours)
	})
}

func newTourListCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tours by start time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTours(cmd, func(ctx context.Context, _ *config.Config, repo tour.Repository) error {
				tours, err := repo.List(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), tours)
				}
				return writeTourTable(cmd.OutOrStdout(), tours)
			})
		},
	}
	addJSONFlag(cmd.Flags(), &asJSON, "tours")
	return cmd
}

func newTourShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <tour-id>",
		Short: "Print one tour with its points of interest as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTours(cmd, func(ctx context.Context, _ *config.Config, repo tour.Repository) error {
				t, err := repo.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), t)
			})
		},
	}
}

func newTourImportCmd() *cobra.Command {
	var checkAudio bool

	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create a tour from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tour.LoadFile(args[0])
			if err != nil {
				return err
			}
			return withTours(cmd, func(ctx context.Context, cfg *config.Config, repo tour.Repository) error {
				if checkAudio {
					if _, err := tour.NewAudioLibrary(cfg.Audio.Dir).Paths(t); err != nil {
						return err
					}
				}
				if err := repo.Create(ctx, t); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Imported tour %s (%d points of interest)\n", t.ID, len(t.POIs))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&checkAudio, "check-audio", false, "require every POI audio file to exist in the audio directory")
	return cmd
}

func newTourSetAudioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-audio <tour-id> <poi-key> <audio-ref>",
		Short: "Assign a narration file to a point of interest",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTours(cmd, func(ctx context.Context, cfg *config.Config, repo tour.Repository) error {
				if _, err := tour.NewAudioLibrary(cfg.Audio.Dir).Resolve(args[2]); err != nil {
					return err
				}
				if err := repo.SetPOIAudio(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Set audio for %s on tour %s\n", args[1], args[0])
				return err
			})
		},
	}
}

func newTourDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tour-id>",
		Short: "Delete a tour and its points of interest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTours(cmd, func(ctx context.Context, _ *config.Config, repo tour.Repository) error {
				if err := repo.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted tour %s\n", args[0])
				return err
			})
		},
	}
}

func newTourStartCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "start <tour-id>",
		Short: "Upload a tour's narration to the robot and start the tour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, cfg *config.Config, st *store) error {
				t, err := st.tours.Get(ctx, args[0])
				if err != nil {
					return err
				}
				paths, err := tour.NewAudioLibrary(cfg.Audio.Dir).Paths(t)
				if err != nil {
					return err
				}

				log := commandLogger(cmd, cfg)
				stack, err := newRobotStack(cfg, log, nil)
				if err != nil {
					return err
				}
				defer stack.shutdown(log)

				if err := stack.connectAndWait(ctx); err != nil {
					return err
				}

				res, err := stack.starter.StartTour(ctx, paths)
				entry := audit.Entry{
					Action:  audit.ActionStartTour,
					TourID:  t.ID,
					Source:  audit.SourceCLI,
					Outcome: audit.OutcomeOf(err),
				}
				if res != nil {
					entry.Details = map[string]any{"phase": res.Phase}
				}
				st.record(ctx, log, entry)

				if res != nil {
					var outErr error
					if asJSON {
						outErr = writeJSON(cmd.OutOrStdout(), res)
					} else {
						outErr = writeReports(cmd.OutOrStdout(), res.Reports, false)
						if outErr == nil {
							_, outErr = fmt.Fprintf(cmd.OutOrStdout(), "Tour %s: %s\n", t.ID, res.Phase)
						}
					}
					if err == nil {
						err = outErr
					}
				}
				return err
			})
		},
	}
	addJSONFlag(cmd.Flags(), &asJSON, "the start result")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTourTable(w io.Writer, tours []tour.Tour) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tLANGUAGE\tSTART\tPOIS\tAUDIO")
	for _, t := range tours {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\n",
			t.ID, t.Title, t.Language, t.Start.Format(time.RFC3339), len(t.POIs), t.AudioGenerated)
	}
	return tw.Flush()
}
