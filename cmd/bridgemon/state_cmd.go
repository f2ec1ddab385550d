package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/bridgemon/internal/state"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	rootCmd.AddCommand(newStateCmd())
}

func newStateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted failure state",
	}
	cmd.AddCommand(newStateShowCmd(), newStateResetCmd())
	return cmd
}

// stateReport is what `state show` prints.
type stateReport struct {
	Path      string     `json:"path" yaml:"path"`
	Exists    bool       `json:"exists" yaml:"exists"`
	Failures  int        `json:"failures" yaml:"failures"`
	Reason    string     `json:"reason" yaml:"reason"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

func newStateShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the persisted failure state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			store := state.NewStore(cfg.StateFile)
			st := store.Load()
			report := stateReport{
				Path:     store.Path(),
				Failures: st.Failures,
				Reason:   st.Reason,
			}
			if info, err := os.Stat(store.Path()); err == nil {
				mod := info.ModTime()
				report.Exists = true
				report.UpdatedAt = &mod
			}

			return printReport(cmd.OutOrStdout(), output, report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")
	return cmd
}

func printReport(w io.Writer, output string, r stateReport) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(r)
	case "text":
		return printReportText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func printReportText(w io.Writer, r stateReport) error {
	status := green.Render("healthy")
	if r.Failures > 0 {
		status = red.Render(fmt.Sprintf("failing (%d consecutive)", r.Failures))
	} else if !r.Exists {
		status = gray.Render("no state yet")
	}

	updated := gray.Render("never")
	if r.UpdatedAt != nil {
		updated = humanize.Time(*r.UpdatedAt)
	}

	reason := r.Reason
	if reason == "" {
		reason = "-"
	}

	_, err := fmt.Fprintf(w, "%s %s\n%s %s\n%s %s\n%s %s\n",
		bold.Render("status  "), status,
		bold.Render("reason  "), reason,
		bold.Render("updated "), updated,
		bold.Render("file    "), cyan.Render(r.Path),
	)
	return err
}

func newStateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the failure count, as if the last check had been healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			store := state.NewStore(cfg.StateFile)

			if cfg.Lock {
				ctx, cancel := context.WithTimeout(cmd.Context(), cfg.PollTimeout())
				defer cancel()
				if err := store.Lock(ctx); err != nil {
					return err
				}
				defer store.Unlock()
			}

			prior := store.Load()
			if err := store.Save(state.MonitorState{Reason: state.ReasonHealthy}); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "state reset (was %d failures, reason %q)\n", prior.Failures, prior.Reason)
			return err
		},
	}
}
