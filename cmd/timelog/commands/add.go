package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/spf13/cobra"
)

// newAddCmd creates the add command
func newAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <factoid>",
		Short: "Add a fact, trimming or splitting the facts it overlaps",
		Example: `  timelog add "09:00 to 10:30 coding@work #go, parser"
  timelog add --hint end "standup@team"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			req := a.parseRequest()
			req.Lenient = false

			return a.withService(cmd.Context(), func(svc *timelog.Service, _ *Backend) error {
				result, err := svc.Add(cmd.Context(), a.opts.Timeline, raw, req)
				if err != nil {
					return err
				}
				a.printInsert(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func (a *app) printInsert(out io.Writer, result *timelog.InsertResult) {
	fmt.Fprintf(out, "added %s", result.Fact)
	if d := a.formatDelta(result.Fact); d != "" {
		fmt.Fprintf(out, " (%s)", d)
	}
	fmt.Fprintln(out)

	for _, edit := range result.Edits {
		fmt.Fprintf(out, "  %-7s %s\n", describeEdit(edit), edit)
	}
	if a.opts.DryRun {
		fmt.Fprintln(out, "dry run: nothing was stored")
	}
}

// describeEdit names what the insertion did to an existing fact
func describeEdit(edit *models.Fact) string {
	switch {
	case edit.Deleted:
		return "deleted"
	case edit.SplitFrom != nil:
		return "split"
	case edit.IsDirty(models.DirtyEnd):
		return "trimmed"
	case edit.IsDirty(models.DirtyStart):
		return "moved"
	default:
		return "edited"
	}
}
