// Package cli implements the interactive research shell: a readline
// prompt that submits queries to the engine and renders its streamed
// progress events as colored terminal output.
//
// Grounded on internal/repl/repl.go's REPL (readline instance, signal
// handling, a background goroutine rendering subscribed events) and
// internal/repl/renderer.go's color-coded RenderEvent switch, adapted
// from the teacher's multi-architecture event types to the single
// types.RunEvent stream Engine.Stream produces.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"deepresearch/internal/engine"
	"deepresearch/internal/types"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

// Shell is the interactive research REPL.
type Shell struct {
	eng       *engine.Engine
	rl        *readline.Instance
	out       io.Writer
	defaults  types.ResearchRequest
	lastRunID string
}

// New constructs a Shell backed by eng. historyFile may be empty.
func New(eng *engine.Engine, historyFile string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mresearch>\033[0m ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("cli: readline init: %w", err)
	}

	return &Shell{
		eng: eng,
		rl:  rl,
		out: os.Stdout,
		defaults: types.ResearchRequest{
			MaxIterations: 3,
			Parallelism:   3,
			DetailLevel:   types.DetailStandard,
			DepthPolicy:   types.DepthAdaptive,
		},
	}, nil
}

// Run drives the REPL until the user exits or ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	defer s.rl.Close()
	s.welcome()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if line == "/help" {
			s.welcome()
			continue
		}
		if arg, ok := strings.CutPrefix(line, "/search "); ok {
			s.runAISearch(ctx, strings.TrimSpace(arg))
			continue
		}
		if arg, ok := strings.CutPrefix(line, "/inspect"); ok {
			s.runInspect(ctx, strings.TrimSpace(arg))
			continue
		}

		s.runQuery(ctx, line)
	}
}

func (s *Shell) runQuery(ctx context.Context, query string) {
	req := s.defaults
	req.Query = query

	events, wait := s.eng.Stream(ctx, req)
	for ev := range events {
		s.renderEvent(ev)
	}

	result, err := wait()
	if err != nil {
		red.Fprintf(s.out, "  ✗ run failed: %v\n", err)
		return
	}
	s.lastRunID = result.RunID

	bold.Fprintln(s.out, "\n=== Report ===")
	fmt.Fprintln(s.out, result.ReportMarkdown)
	dim.Fprintf(s.out, "\n(%d iterations, %d evidence records, %d citations, %.1fs; run_id=%s)\n",
		result.RunStats.Iterations, result.RunStats.EvidenceCount, result.RunStats.CitationCount, result.RunStats.ElapsedSeconds, result.RunID)
}

// runAISearch answers query directly from live web sources via
// Engine.AISearch, bypassing the full iteration loop.
func (s *Shell) runAISearch(ctx context.Context, query string) {
	if query == "" {
		yellow.Fprintln(s.out, "  usage: /search <query>")
		return
	}
	result, err := s.eng.AISearch(ctx, query, 8)
	if err != nil {
		red.Fprintf(s.out, "  ✗ search failed: %v\n", err)
		return
	}

	bold.Fprintln(s.out, "\n=== AI Search ===")
	fmt.Fprintln(s.out, result.AnswerMarkdown)
	dim.Fprintf(s.out, "\n(%v sources, %v pages scraped)\n", result.RunStats["sources"], result.RunStats["scraped_pages"])
}

// runInspect prints the persisted digest of a prior run. An empty runID
// inspects the most recently completed run in this session.
func (s *Shell) runInspect(ctx context.Context, runID string) {
	if runID == "" {
		runID = s.lastRunID
	}
	if runID == "" {
		yellow.Fprintln(s.out, "  usage: /inspect <run_id> (or run a query first)")
		return
	}

	digest, err := s.eng.InspectRun(ctx, runID)
	if err != nil {
		red.Fprintf(s.out, "  ✗ inspect failed: %v\n", err)
		return
	}
	if !digest.Exists {
		yellow.Fprintf(s.out, "  no run found for %q\n", runID)
		return
	}

	bold.Fprintln(s.out, "\n=== Run Digest ===")
	fmt.Fprintf(s.out, "run_id:    %s\n", digest.RunID)
	fmt.Fprintf(s.out, "status:    %s\n", digest.Status)
	fmt.Fprintf(s.out, "created:   %s\n", digest.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(s.out, "updated:   %s\n", digest.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(s.out, "query:     %s\n", digest.Input.Query)
	dim.Fprintf(s.out, "(%d events recorded)\n", len(digest.Events))
}

func (s *Shell) renderEvent(ev types.RunEvent) {
	switch ev.Stage {
	case types.StagePlan:
		yellow.Fprintf(s.out, "  ⚡ planning iteration: %v\n", ev.Metrics["tasks"])
	case types.StageSearch:
		if traceType, ok := ev.Metrics["trace_type"]; ok {
			dim.Fprintf(s.out, "  │ %v\n", traceType)
		}
	case types.StageSynthesize:
		green.Fprintf(s.out, "  ✓ synthesis: %s\n", truncate(ev.Message, 80))
	case types.StageCite:
		cyan.Fprintf(s.out, "  citations: %v\n", ev.Metrics["citations"])
	case types.StageReport:
		cyan.Fprintf(s.out, "  report words: %v\n", ev.Metrics["report_words"])
	case types.StageError:
		red.Fprintf(s.out, "  ✗ error: %s\n", ev.Message)
	}
}

func (s *Shell) welcome() {
	cyan.Fprint(s.out, `
╔═══════════════════════════════════════════════════════════╗
║                    Deep Research Shell                    ║
║                                                           ║
║  Type a question to start a research run.                 ║
║    /search <query>  - Answer directly from live sources    ║
║    /inspect [run_id]- Show a run's status and digest       ║
║    /help            - Show this message                   ║
║    /exit            - Quit                                 ║
╚═══════════════════════════════════════════════════════════╝
`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
