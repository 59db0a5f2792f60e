package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/benvon/smart-timelog/internal/database"
	"github.com/benvon/smart-timelog/internal/models"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/spf13/cobra"
)

const (
	listFormatTable   = "table"
	listFormatFactoid = "factoid"
	listFormatJSON    = "json"
)

// newListCmd creates the list command
func newListCmd(a *app) *cobra.Command {
	var start, end, format string
	var includeDeleted bool
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the facts of a timeline",
		Example: `  timelog list --start 2024-03-15 --end 2024-03-16
  timelog list --format factoid > backup.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.location()
			if err != nil {
				return err
			}
			filter := database.ListFilter{IncludeDeleted: includeDeleted, Limit: limit}
			if filter.Start, err = parseBound("--start", start, loc); err != nil {
				return err
			}
			if filter.End, err = parseBound("--end", end, loc); err != nil {
				return err
			}
			if filter.Start != nil && filter.End != nil && !filter.End.After(*filter.Start) {
				return fmt.Errorf("--end must be after --start")
			}

			return a.withService(cmd.Context(), func(svc *timelog.Service, _ *Backend) error {
				facts, err := svc.List(cmd.Context(), a.opts.Timeline, filter)
				if err != nil {
					return err
				}
				return a.printFacts(cmd, facts, format)
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Only facts ending after this time (RFC 3339, YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)")
	cmd.Flags().StringVar(&end, "end", "", "Only facts starting before this time")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include facts deleted by later insertions")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of facts (0 for no limit)")
	cmd.Flags().StringVar(&format, "format", listFormatTable, "Output format: table, factoid or json")

	return cmd
}

func (a *app) printFacts(cmd *cobra.Command, facts []*models.Fact, format string) error {
	out := cmd.OutOrStdout()

	switch format {
	case listFormatJSON:
		if facts == nil {
			facts = []*models.Fact{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(facts)
	case listFormatFactoid:
		for _, fact := range facts {
			fmt.Fprintln(out, fact.SerializedString())
		}
		return nil
	case listFormatTable:
	default:
		return fmt.Errorf("unknown --format %q", format)
	}

	if len(facts) == 0 {
		fmt.Fprintln(out, "No facts")
		return nil
	}

	var total time.Duration
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tDURATION\tACTIVITY\tTAGS\tDESCRIPTION")
	for _, fact := range facts {
		end := "ongoing"
		if fact.End != nil {
			end = fact.End.Format(models.TimestampLayout)
		}
		if d, ok := fact.Delta(a.env.Now()); ok && !fact.Deleted {
			total += d
		}
		activity := fact.ActivityName() + "@" + fact.CategoryName()
		if fact.Deleted {
			activity += " (deleted)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatStart(fact), end, a.formatDelta(fact), activity,
			strings.Join(fact.TagNames(), " "), fact.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if formatted, err := models.FormatDelta(total, a.opts.DurationFormat); err == nil {
		fmt.Fprintf(out, "\n%d facts, total %s\n", len(facts), strings.TrimSpace(formatted))
	}
	return nil
}

func formatStart(fact *models.Fact) string {
	if fact.Start == nil {
		return ""
	}
	return fact.Start.Format(models.TimestampLayout)
}

func (a *app) location() (*time.Location, error) {
	name := a.opts.Timezone
	if name == "" {
		name = a.cfg.LocalTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// parseBound reads a list window bound. Dates and local timestamps use loc.
func parseBound(flag, raw string, loc *time.Location) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range []string{time.DateTime, "2006-01-02 15:04", time.DateOnly} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid %s %q (use RFC 3339, YYYY-MM-DD or YYYY-MM-DD HH:MM:SS)", flag, raw)
}
