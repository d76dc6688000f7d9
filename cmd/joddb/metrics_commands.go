package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Performance and progress figures",
	}
	cmd.AddCommand(newMetricsOrderCommand(ctx))
	cmd.AddCommand(newMetricsTechnicianCommand(ctx))
	cmd.AddCommand(newMetricsDashboardCommand(ctx))
	return cmd
}

func newMetricsOrderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job-order <order-id>",
		Short: "Show a job order's progress rollup and alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			svc, err := ctx.metricsService()
			if err != nil {
				return err
			}
			resp, err := svc.JobOrder(cmd.Context(), orderID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Progress", "Completed", "Rejected", "Devices"},
				[][]string{{
					fmt.Sprintf("%.1f%%", resp.ProgressPercent),
					strconv.Itoa(resp.TotalCompleted),
					strconv.Itoa(resp.TotalRejected),
					strconv.Itoa(resp.TotalDevices),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight},
			))
			printAlertRows(cmd, resp.Alerts)
			return nil
		},
	}
}

func newMetricsTechnicianCommand(ctx *commandContext) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "technician <name>",
		Short: "Show a technician's daily snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.metricsService()
			if err != nil {
				return err
			}
			resp, err := svc.Technician(cmd.Context(), args[0], date)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Technician", "Date", "Completed", "Avg Efficiency", "Productivity", "Utilization"},
				[][]string{{
					resp.Technician,
					resp.Date,
					strconv.Itoa(resp.TasksCompleted),
					fmt.Sprintf("%.1f%%", resp.AverageEfficiency),
					fmt.Sprintf("%.1f%%", resp.Productivity),
					fmt.Sprintf("%.1f%%", resp.Utilization),
				}},
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Snapshot date (YYYY-MM-DD, default today)")
	return cmd
}

func newMetricsDashboardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show pipeline-wide counts, open orders, and alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.metricsService()
			if err != nil {
				return err
			}
			resp, err := svc.Dashboard(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			statusRows := make([][]string, 0, len(resp.StatusCounts))
			for _, status := range statusOrder {
				statusRows = append(statusRows, []string{
					humanizeLabel(status),
					strconv.Itoa(resp.StatusCounts[status]),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Status", "Tasks"},
				statusRows,
				[]columnAlignment{alignLeft, alignRight},
			))

			if len(resp.OpenOrders) > 0 {
				orderRows := make([][]string, 0, len(resp.OpenOrders))
				for _, order := range resp.OpenOrders {
					orderRows = append(orderRows, []string{
						order.Code,
						order.Title,
						strconv.Itoa(order.TotalDevices),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Open Order", "Title", "Devices"},
					orderRows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
			}
			printAlertRows(cmd, resp.Alerts)
			return nil
		},
	}
}

// statusOrder fixes dashboard row ordering to the lifecycle sequence.
var statusOrder = []string{
	"available",
	"in_progress",
	"pending_qa",
	"qa_approved",
	"tester_approved",
	"pending_supervisor",
	"rework_required",
	"completed",
	"closed",
}
