package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"joddb/internal/api"
)

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "alerts",
		Short: "Evaluate alerts over the whole pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.metricsService()
			if err != nil {
				return err
			}
			resp, err := svc.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			if len(resp.Alerts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
				return nil
			}
			printAlertRows(cmd, resp.Alerts)
			return nil
		},
	}
}

func printAlertRows(cmd *cobra.Command, found []api.Alert) {
	if len(found) == 0 {
		return
	}
	rows := make([][]string, 0, len(found))
	for _, alert := range found {
		rows = append(rows, []string{
			humanizeLabel(alert.Type),
			humanizeLabel(alert.Severity),
			strconv.FormatInt(alert.JobOrderID, 10),
			alert.Message,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"Alert", "Severity", "Order", "Message"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
}
