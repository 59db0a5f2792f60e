package commands

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/benvon/smart-timelog/internal/handlers"
	"github.com/benvon/smart-timelog/internal/middleware"
	"github.com/benvon/smart-timelog/internal/queue"
	"github.com/benvon/smart-timelog/internal/services/timelog"
	"github.com/benvon/smart-timelog/internal/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newImportCmd creates the import command
func newImportCmd(a *app) *cobra.Command {
	var local, remote bool

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import factoids, one per line",
		Long: `Import factoids, one per line. By default the lines are queued as one
import job for the worker. --remote posts them to the API server with the
configured client credentials, --local inserts them right away.`,
		Example: `  timelog import --hint both week12.txt
  cat week12.txt | timelog import --dry-run -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if local && remote {
				return fmt.Errorf("--local and --remote cannot be combined")
			}

			lines, err := readLines(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				return fmt.Errorf("no factoids in %s", args[0])
			}

			switch {
			case local || a.opts.DryRun:
				return a.importLocal(cmd, lines)
			case remote:
				return a.importRemote(cmd, lines)
			default:
				return a.importQueued(cmd, lines)
			}
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Insert the factoids now instead of queueing a job")
	cmd.Flags().BoolVar(&remote, "remote", false, "Send the factoids to TIMELOG_SERVER_URL")

	return cmd
}

// readLines reads path, or standard input for "-", keeping blank lines so
// reported line numbers match the file
func readLines(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	var lines []string
	nonBlank := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) != "" {
			nonBlank++
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if nonBlank == 0 {
		return nil, nil
	}
	return lines, nil
}

func (a *app) newJob(lines []string) *queue.Job {
	job := queue.NewImportJob(a.opts.Timeline, lines, a.parseRequest().Hint, a.opts.Timezone)
	job.CreatedAt = a.env.Now()
	return job
}

func (a *app) importLocal(cmd *cobra.Command, lines []string) error {
	return a.withService(cmd.Context(), func(svc *timelog.Service, _ *Backend) error {
		report, err := workers.NewImporter(svc, nil, a.logger).Import(cmd.Context(), a.newJob(lines))
		out := cmd.OutOrStdout()
		if report != nil {
			fmt.Fprintf(out, "inserted %d, rejected %d, skipped %d\n", report.Inserted, len(report.Rejected), report.Skipped)
			for _, rejected := range report.Rejected {
				fmt.Fprintf(out, "  line %d: %s\n    %s\n", rejected.Line, rejected.Factoid, rejected.Error)
			}
		}
		if err != nil {
			if report == nil {
				return err
			}
			return fmt.Errorf("import stopped at line %d: %w", report.Offset+1, err)
		}
		if a.opts.DryRun {
			fmt.Fprintln(out, "dry run: nothing was stored")
		}
		return nil
	})
}

func (a *app) importQueued(cmd *cobra.Command, lines []string) error {
	if len(lines) > handlers.MaxImportLines {
		return fmt.Errorf("%d lines exceed the limit of %d per job", len(lines), handlers.MaxImportLines)
	}

	jobQueue, err := a.env.OpenQueue(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			a.logger.Warn("failed_to_close_queue", zap.Error(err))
		}
	}()

	job := a.newJob(lines)
	if err := jobQueue.Enqueue(cmd.Context(), job); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued import job %s (%d lines)\n", job.ID, len(lines))
	return nil
}

type importEnvelope struct {
	Success bool                    `json:"success"`
	Data    handlers.ImportResponse `json:"data"`
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
}

func (a *app) importRemote(cmd *cobra.Command, lines []string) error {
	ctx := cmd.Context()
	body, err := json.Marshal(handlers.ImportRequest{
		Lines:    lines,
		Hint:     a.opts.Hint,
		Timezone: a.opts.Timezone,
	})
	if err != nil {
		return err
	}

	url := strings.TrimRight(a.cfg.ServerURL, "/") + "/api/v1/imports"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.TimelineHeader, a.opts.Timeline)

	resp, err := a.env.HTTPClient(ctx, a.cfg).Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", a.cfg.ServerURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var envelope importEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("unexpected response from server (%s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusAccepted || !envelope.Success {
		return fmt.Errorf("server rejected import (%s): %s: %s", resp.Status, envelope.Error, envelope.Message)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "queued import job %s (%d lines)\n", envelope.Data.JobID, envelope.Data.Lines)
	return nil
}
