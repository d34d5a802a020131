package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
)

func runCMD(cfgPath *string) *cobra.Command {
	var asJSON bool
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Run one research query and print the brief",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			var extra []research.Observer
			if !quiet && !asJSON {
				extra = append(extra, &progressPrinter{w: out})
				fmt.Fprintf(out, "Researching: %s\n\n", query)
			}
			ctx, cancel := runtime.SignalContext(cmd.Context(), "run", nil)
			defer cancel()

			a, err := newApp(ctx, cfg, extra...)
			if err != nil {
				return err
			}
			defer a.Close()

			state, run, err := a.runner.Run(ctx, query, "cli")
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			printBrief(out, state)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the archived run as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "only print the final brief")
	return cmd
}

// progressPrinter renders per-stage progress for a terminal.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) OnEvent(_ context.Context, ev research.Event) {
	if ev.Status == research.StatusStarted {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	d := ev.Detail
	switch {
	case ev.Status == research.StatusFailed:
		fmt.Fprintf(p.w, "[%s] failed: %s\n", ev.Stage.Label(), ev.Message)
	case ev.Stage == research.AgentPlanner:
		fmt.Fprintf(p.w, "[Planner] plan: %v\n", d["plan_preview"])
	case ev.Stage == research.AgentSearch:
		fmt.Fprintf(p.w, "[Search Agent] %v questions, %v evidence entries (%v empty)\n", d["questions"], d["evidence"], d["empty_evidence"])
	case ev.Stage == research.AgentExtraction:
		fmt.Fprintf(p.w, "[Extractor] %v facts, %v citations\n", d["facts"], d["citations"])
	case ev.Stage == research.AgentWriter:
		fmt.Fprintf(p.w, "[Writer Agent] draft %v: %v\n", d["pass"], d["draft_preview"])
	case ev.Stage == research.AgentEvaluator:
		if approved, _ := d["approved"].(bool); approved {
			fmt.Fprintln(p.w, "[Evaluator] approved")
		} else if fb, ok := d["feedback_preview"]; ok {
			fmt.Fprintf(p.w, "[Evaluator] needs revision: %v\n", fb)
		} else {
			fmt.Fprintln(p.w, "[Evaluator] revision limit reached; finishing unapproved")
		}
	case ev.Status == research.StatusFinished:
		fmt.Fprintf(p.w, "\nDone in %s.\n", ev.Took.Round(time.Millisecond))
	}
}

func printBrief(w io.Writer, s research.State) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "==== Research Brief ====")
	fmt.Fprintln(w, s.FinalSummary)
	if len(s.Citations) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, c := range helpers.DedupeCitations(s.Citations) {
			if d := helpers.Domain(c); d != "" {
				fmt.Fprintf(w, "  - %s (%s)\n", c, d)
				continue
			}
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	if s.Unapproved {
		fmt.Fprintln(w, "\nNote: the evaluator did not approve this brief within the revision limit.")
	}
}
