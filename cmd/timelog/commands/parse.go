package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/benvon/smart-timelog/internal/factoid"
	"github.com/spf13/cobra"
)

// newParseCmd creates the parse command
func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <factoid>",
		Short: "Parse a factoid without storing it",
		Example: `  timelog parse "09:00 to 10:30 coding@work #go, parser"
  timelog parse --hint end --lenient "yesterday 17:00 review@"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(MemoryBackend())
			if err != nil {
				return err
			}

			result, err := svc.Parse(strings.Join(args, " "), a.parseRequest())
			out := cmd.OutOrStdout()
			if result != nil && (err == nil || a.opts.Lenient) {
				printResult(out, result)
			}
			if err != nil {
				if kind, ok := factoid.KindOf(err); ok {
					return fmt.Errorf("%s: %w", kind, err)
				}
				return err
			}
			if !result.Deferred() {
				fmt.Fprintf(out, "factoid:     %s\n", result.Fact().SerializedString())
			}
			return nil
		},
	}
}

func printResult(out io.Writer, result *factoid.Result) {
	if t := result.StartTime(); t != nil {
		fmt.Fprintf(out, "start:       %s\n", t.Format("2006-01-02 15:04:05 -0700"))
	} else if result.Start != nil {
		fmt.Fprintf(out, "start:       %s (deferred)\n", result.Start.Raw)
	}
	if t := result.EndTime(); t != nil {
		fmt.Fprintf(out, "end:         %s\n", t.Format("2006-01-02 15:04:05 -0700"))
	} else if result.End != nil {
		fmt.Fprintf(out, "end:         %s (deferred)\n", result.End.Raw)
	}
	fmt.Fprintf(out, "activity:    %s\n", result.Activity)
	if result.Category != "" {
		fmt.Fprintf(out, "category:    %s\n", result.Category)
	}
	if len(result.Tags) > 0 {
		fmt.Fprintf(out, "tags:        %s\n", strings.Join(result.Tags, ", "))
	}
	if result.Description != "" {
		fmt.Fprintf(out, "description: %s\n", result.Description)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(out, "warning:     %s\n", warning)
	}
}
