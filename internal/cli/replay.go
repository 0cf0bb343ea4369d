package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"grindolympiads/internal/domain"
	"grindolympiads/internal/timing"
)

type replayOptions struct {
	file      string
	startedAt string
	now       string
	labels    string
	asJSON    bool
}

// NewReplayCmd reconstructs per-problem timers from an exported action log.
func NewReplayCmd() *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reconstruct problem timers from an action log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON file with an array of actions (or {\"actions\": [...]}); - for stdin")
	cmd.Flags().StringVar(&opts.startedAt, "started-at", "", "run start time (RFC3339); defaults to the earliest action")
	cmd.Flags().StringVar(&opts.now, "now", "", "evaluation time (RFC3339); defaults to the latest action")
	cmd.Flags().StringVar(&opts.labels, "labels", "", "comma-separated problem labels to report")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the result as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runReplay(out io.Writer, opts *replayOptions) error {
	actions, err := readActions(opts.file)
	if err != nil {
		return err
	}

	startedAt, now := actionBounds(actions)
	if opts.startedAt != "" {
		if startedAt, err = time.Parse(time.RFC3339, opts.startedAt); err != nil {
			return fmt.Errorf("--started-at: %w", err)
		}
	}
	if opts.now != "" {
		if now, err = time.Parse(time.RFC3339, opts.now); err != nil {
			return fmt.Errorf("--now: %w", err)
		}
	}

	labels := splitLabels(opts.labels)
	if len(labels) == 0 {
		labels = labelsFromActions(actions)
	}

	result := timing.Reconstruct(actions, startedAt, now, labels)
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROBLEM\tFIRST\tSECOND\tLOCKED")
	for _, label := range labels {
		t := result.Timers[label]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", label, t.FirstTimer, t.SecondTimer, t.FirstTimerLocked)
	}
	fmt.Fprintf(tw, "paused\t%s\t\t\n", result.TotalPaused)
	fmt.Fprintf(tw, "elapsed\t%s\t\t\n", result.Elapsed())
	return tw.Flush()
}

func readActions(path string) ([]domain.Action, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var actions []domain.Action
	if err := json.Unmarshal(data, &actions); err == nil {
		return actions, nil
	}
	var wrapped struct {
		Actions []domain.Action `json:"actions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return wrapped.Actions, nil
}

func actionBounds(actions []domain.Action) (time.Time, time.Time) {
	var first, last time.Time
	for _, a := range actions {
		if a.Timestamp.IsZero() {
			continue
		}
		if first.IsZero() || a.Timestamp.Before(first) {
			first = a.Timestamp
		}
		if a.Timestamp.After(last) {
			last = a.Timestamp
		}
	}
	return first, last
}

func splitLabels(raw string) []string {
	var labels []string
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// labelsFromActions lists labels in first-seen order, falling back to sorted order on ties.
func labelsFromActions(actions []domain.Action) []string {
	sorted := append([]domain.Action(nil), actions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	seen := make(map[string]bool)
	var labels []string
	for _, a := range sorted {
		if a.ProblemLabel == "" || seen[a.ProblemLabel] {
			continue
		}
		seen[a.ProblemLabel] = true
		labels = append(labels, a.ProblemLabel)
	}
	return labels
}
