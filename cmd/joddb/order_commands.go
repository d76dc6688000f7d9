package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newOrdersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Manage job orders",
	}
	cmd.AddCommand(newOrdersListCommand(ctx))
	cmd.AddCommand(newOrdersCreateCommand(ctx))
	cmd.AddCommand(newOrdersAddTaskCommand(ctx))
	cmd.AddCommand(newOrdersReportsCommand(ctx))
	return cmd
}

func newOrdersListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			var statuses []string
			if strings.TrimSpace(statusFlag) != "" {
				statuses = strings.Split(statusFlag, ",")
			}
			orders, err := svc.ListJobOrders(cmd.Context(), statuses...)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(orders))
			for _, order := range orders {
				due := "-"
				if order.DueDate != "" {
					due = order.DueDate[:10]
				}
				rows = append(rows, []string{
					strconv.FormatInt(order.ID, 10),
					order.Code,
					order.Title,
					strconv.Itoa(order.TotalDevices),
					due,
					humanizeLabel(order.Status),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Code", "Title", "Devices", "Due", "Status"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (comma separated)")
	return cmd
}

func newOrdersCreateCommand(ctx *commandContext) *cobra.Command {
	var title string
	var devices int
	var due string

	cmd := &cobra.Command{
		Use:   "create <code>",
		Short: "Create a job order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			var dueDate time.Time
			if strings.TrimSpace(due) != "" {
				dueDate, err = time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("invalid --due %q, want YYYY-MM-DD", due)
				}
			}
			order, err := svc.CreateJobOrder(cmd.Context(), args[0], title, devices, dueDate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created job order %s (id %d)\n", order.Code, order.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Job order title")
	cmd.Flags().IntVar(&devices, "devices", 1, "Total device count")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	return cmd
}

func newOrdersAddTaskCommand(ctx *commandContext) *cobra.Command {
	var operation string
	var standard int64

	cmd := &cobra.Command{
		Use:   "add-task <order-id> <device-serial>",
		Short: "Add a task to a job order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, err := svc.AddTask(cmd.Context(), orderID, args[1], operation, standard)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %d (%s)\n", task.ID, task.DeviceSerial)
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "Operation name")
	cmd.Flags().Int64Var(&standard, "standard", 0, "Standard time in seconds")
	return cmd
}

func newOrdersReportsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports <order-id>",
		Short: "List reports filed under a job order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid order id %q", args[0])
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			reports, err := svc.ListReports(cmd.Context(), orderID)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(reports))
			for _, report := range reports {
				rows = append(rows, []string{
					strconv.FormatInt(report.ID, 10),
					strconv.FormatInt(report.TaskID, 10),
					report.Author,
					orDash(report.Role),
					report.Content,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Task", "Author", "Role", "Content"},
				rows,
				[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	return cmd
}
