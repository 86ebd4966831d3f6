package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var (
		projectID string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}

			ledgerStore := ctx.openLedger(cfg, logger)
			if ledgerStore == nil {
				return fmt.Errorf("run ledger unavailable at %s", cfg.LedgerPath)
			}
			defer ledgerStore.Close()

			entries, err := ledgerStore.List(cmd.Context(), strings.TrimSpace(projectID), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived runs")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				counters := fmt.Sprintf("%d/%d/%d",
					entry.StagesCompleted, entry.StagesSkipped, entry.StagesFailed)
				detail := ""
				if len(entry.Errors) > 0 {
					detail = entry.Errors[0]
				}
				rows = append(rows, []string{
					entry.RunID,
					entry.ProjectID,
					entry.Status,
					counters,
					entry.StartedAt,
					detail,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"RUN", "PROJECT", "STATUS", "OK/SKIP/FAIL", "STARTED", "DETAIL"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Filter to one project id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 = all)")

	return cmd
}
