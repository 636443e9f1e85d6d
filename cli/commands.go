package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/a2y-d5l/forge"
)

func (a *App) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run tasks and their dependencies (default: " + forge.DefaultTask + ")",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if d := a.v.GetDuration("timeout"); d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}

			res, err := a.Manager.Execute(ctx, args, a.runOptions()...)
			if err != nil {
				return err
			}
			if !a.v.GetBool("no-summary") {
				Summary(cmd.OutOrStdout(), res, !a.v.GetBool("no-color"))
			}
			if !res.OK() {
				return &pipelineFailed{res: res}
			}
			return nil
		},
	}
	cmd.Flags().Duration("timeout", 0, "cancel the run after this long")
	cmd.Flags().Bool("no-summary", false, "do not print the result summary")
	return cmd
}

func (a *App) planCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan [task...]",
		Short: "Show the execution order without running anything",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := a.Manager.Build(args...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range plan.Stages() {
				fmt.Fprintf(out, "%d. %s\n", s.Index+1, strings.Join(s.Tasks, ", "))
			}
			for _, name := range plan.Unmatched() {
				fmt.Fprintf(out, "unknown task: %s\n", name)
			}
			return nil
		},
	}
}

// taskInfo is the yaml form of a task in `list --format yaml`.
type taskInfo struct {
	Name            string   `yaml:"name"`
	Description     string   `yaml:"description,omitempty"`
	Deps            []string `yaml:"deps,omitempty"`
	ContinueOnError bool     `yaml:"continue_on_error,omitempty"`
}

func (a *App) listCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks := a.Manager.Pipeline.Tasks()
			out := cmd.OutOrStdout()

			switch format := a.v.GetString("format"); format {
			case "yaml":
				infos := make([]taskInfo, 0, len(tasks))
				for _, t := range tasks {
					infos = append(infos, taskInfo{Name: t.Name, Description: t.Desc, Deps: t.Deps, ContinueOnError: t.ContinueOnError})
				}
				b, err := yaml.Marshal(infos)
				if err != nil {
					return errors.Wrap(err, "list")
				}
				_, err = out.Write(b)
				return err
			case "text":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, t := range tasks {
					deps := ""
					if len(t.Deps) > 0 {
						deps = "(" + strings.Join(t.Deps, ", ") + ")"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Desc, deps)
				}
				return tw.Flush()
			default:
				return errors.Errorf("list: unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringP("format", "f", "text", "output format: text or yaml")
	return cmd
}

func (a *App) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event handlers until they finish or the process is stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), a.v.GetString("metrics-addr"), a.v.GetDuration("shutdown-timeout"))
		},
	}
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
	cmd.Flags().Duration("shutdown-timeout", 5*time.Second, "grace period for the metrics server")
	return cmd
}
