package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"joddb/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and drive the task lifecycle",
	}
	cmd.AddCommand(newTasksListCommand(ctx))
	cmd.AddCommand(newTasksShowCommand(ctx))
	cmd.AddCommand(newTasksStartCommand(ctx))
	cmd.AddCommand(newTasksEndCommand(ctx))
	cmd.AddCommand(newTasksResumeCommand(ctx))
	cmd.AddCommand(newTasksCloseCommand(ctx))
	return cmd
}

func taskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		rows = append(rows, []string{
			strconv.FormatInt(task.ID, 10),
			strconv.FormatInt(task.JobOrderID, 10),
			task.DeviceSerial,
			orDash(task.OperationName),
			orDash(task.Technician),
			humanizeLabel(task.Status),
			strconv.Itoa(task.Pass),
			formatSeconds(task.ActualTimeSeconds),
			formatPercent(task.EfficiencyPercent),
		})
	}
	return rows
}

var taskHeaders = []string{"ID", "Order", "Serial", "Operation", "Technician", "Status", "Pass", "Actual", "Efficiency"}

var taskAligns = []columnAlignment{
	alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight,
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			var statuses []string
			if strings.TrimSpace(statusFlag) != "" {
				statuses = strings.Split(statusFlag, ",")
			}
			tasks, err := svc.List(cmd.Context(), statuses...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(taskHeaders, taskRows(tasks), taskAligns))
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status (comma separated)")
	return cmd
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and its review history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, history, err := svc.Describe(cmd.Context(), id)
			if err != nil {
				return err
			}
			if task == nil {
				return fmt.Errorf("task %d not found", id)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(taskHeaders, taskRows([]api.Task{*task}), taskAligns))
			if len(history) == 0 {
				return nil
			}

			rows := make([][]string, 0, len(history))
			for _, review := range history {
				rows = append(rows, []string{
					strconv.Itoa(review.Pass),
					humanizeLabel(review.Stage),
					humanizeLabel(review.Decision),
					review.Actor,
					orDash(review.Comments),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Pass", "Stage", "Decision", "Actor", "Comments"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newTasksStartCommand(ctx *commandContext) *cobra.Command {
	var technician string

	cmd := &cobra.Command{
		Use:   "start <task-id>",
		Short: "Claim a task for a technician",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, err := svc.Start(cmd.Context(), id, technician)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d claimed by %s\n", task.ID, task.Technician)
			return nil
		},
	}
	cmd.Flags().StringVar(&technician, "technician", "", "Technician claiming the task")
	_ = cmd.MarkFlagRequired("technician")
	return cmd
}

func newTasksEndCommand(ctx *commandContext) *cobra.Command {
	var technician string
	var notes string

	cmd := &cobra.Command{
		Use:   "end <task-id>",
		Short: "Finish work on a task and queue it for QA",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, err := svc.End(cmd.Context(), id, technician, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d is now %s (actual %s)\n",
				task.ID, humanizeLabel(task.Status), formatSeconds(task.ActualTimeSeconds))
			return nil
		},
	}
	cmd.Flags().StringVar(&technician, "technician", "", "Technician finishing the task")
	cmd.Flags().StringVar(&notes, "notes", "", "Completion notes")
	_ = cmd.MarkFlagRequired("technician")
	return cmd
}

func newTasksResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <task-id>",
		Short: "Return a rejected task to the pool for rework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, err := svc.Resume(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d back in the pool, pass %d\n", task.ID, task.Pass)
			return nil
		},
	}
}

func newTasksCloseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "close <task-id>",
		Short: "Archive a rejected task without further rework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			task, err := svc.Close(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d closed\n", task.ID)
			return nil
		},
	}
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", raw)
	}
	return id, nil
}
