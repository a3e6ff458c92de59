package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"browser-observer/internal/di"
	"browser-observer/internal/domain/entity"
	"browser-observer/internal/infrastructure/env"
	"browser-observer/internal/infrastructure/failurelog"

	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Show constitution failure statistics",
	Long: `Summarises the failure log written by the quality gate. With --agent,
--level or --limit the matching failures are listed as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, _ := cmd.Flags().GetString("agent")
		level, _ := cmd.Flags().GetString("level")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := di.ConfigFromEnv(env.NewEnvService())
		path := filepath.Join(cfg.OutputDir, di.FailureLogFile)
		filter := entity.FailureFilter{Agent: agent, Level: entity.ValidationLevel(level), Limit: limit}
		list := agent != "" || level != "" || limit > 0
		return showFailures(cmd.Context(), cmd.OutOrStdout(), path, filter, list)
	},
}

func init() {
	rootCmd.AddCommand(failuresCmd)

	failuresCmd.Flags().String("agent", "", "Only failures of this agent (planner, navigator, observer, archivist)")
	failuresCmd.Flags().String("level", "", "Only failures of this level (critical, warning, info)")
	failuresCmd.Flags().Int("limit", 0, "List at most this many recent failures")
}

func showFailures(ctx context.Context, w io.Writer, path string, filter entity.FailureFilter, list bool) error {
	log, err := failurelog.Open(path)
	if err != nil {
		return err
	}
	defer log.Close()

	stats, err := log.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read failure stats: %w", err)
	}
	fmt.Fprintf(w, "reports: %d, failed: %d\n", stats.Reports, stats.Failed)
	printCounts(w, "by agent", stats.ByAgent)
	printCounts(w, "by rule", stats.ByRule)
	byLevel := make(map[string]int, len(stats.ByLevel))
	for k, v := range stats.ByLevel {
		byLevel[string(k)] = v
	}
	printCounts(w, "by level", byLevel)

	if !list {
		return nil
	}
	entries, err := log.Query(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to query failures: %w", err)
	}
	fmt.Fprintf(w, "\n%d matching failure(s)\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "%s %-9s %-8s %-22s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Agent, e.Level, e.Rule, e.Reason)
	}
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-24s %d\n", k, counts[k])
	}
}
