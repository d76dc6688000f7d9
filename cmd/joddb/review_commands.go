package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"joddb/internal/engine"
	"joddb/internal/pipeline"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review queues and decisions",
	}
	cmd.AddCommand(newReviewQueueCommand(ctx))
	cmd.AddCommand(newReviewDecideCommand(ctx))
	return cmd
}

func newReviewQueueCommand(ctx *commandContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the prioritized queue for a review role",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.metricsService()
			if err != nil {
				return err
			}
			resp, err := svc.ReviewQueue(cmd.Context(), role)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(resp.Items))
			for _, item := range resp.Items {
				waiting := (time.Duration(item.WaitingSeconds) * time.Second).Round(time.Minute)
				rows = append(rows, []string{
					humanizeLabel(item.Priority),
					fmt.Sprintf("%d", item.Task.ID),
					item.Task.DeviceSerial,
					orDash(item.Task.Technician),
					waiting.String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Priority", "Task", "Serial", "Technician", "Waiting"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "qa", "Review role (qa, tester, supervisor)")
	return cmd
}

func newReviewDecideCommand(ctx *commandContext) *cobra.Command {
	var stage string
	var actor string
	var comments string

	cmd := &cobra.Command{
		Use:   "decide <task-id> <accepted|rejected>",
		Short: "Record a review decision for a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			decision, ok := pipeline.ParseDecision(args[1])
			if !ok {
				return fmt.Errorf("invalid decision %q, want accepted or rejected", args[1])
			}
			parsedStage, ok := pipeline.ParseStage(stage)
			if !ok {
				return fmt.Errorf("invalid stage %q, want qa, tester, or supervisor", stage)
			}

			svc, err := ctx.taskService()
			if err != nil {
				return err
			}
			resp, err := svc.Decide(cmd.Context(), engine.DecisionRequest{
				TaskID:   id,
				Stage:    parsedStage,
				Decision: decision,
				Comments: comments,
				Actor:    actor,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d %s at %s stage, now %s\n",
				resp.Task.ID, resp.Review.Decision, resp.Review.Stage, humanizeLabel(resp.Task.Status))
			return nil
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "qa", "Review stage (qa, tester, supervisor)")
	cmd.Flags().StringVar(&actor, "actor", "", "Reviewer identity")
	cmd.Flags().StringVar(&comments, "comments", "", "Decision comments (required for rejections)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}
