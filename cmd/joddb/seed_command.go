package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var seedOperations = []struct {
	name     string
	standard int64
}{
	{"solder main board", 600},
	{"assemble enclosure", 420},
	{"flash firmware", 300},
	{"final inspection prep", 240},
}

// newSeedCommand creates a demo job order with generated device serials so a
// fresh install has something to drive through the pipeline.
func newSeedCommand(ctx *commandContext) *cobra.Command {
	var devices int
	var code string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with a demo job order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if devices <= 0 {
				return fmt.Errorf("--devices must be positive")
			}
			svc, err := ctx.taskService()
			if err != nil {
				return err
			}

			if strings.TrimSpace(code) == "" {
				code = "JO-" + strings.ToUpper(uuid.NewString()[:8])
			}
			due := time.Now().AddDate(0, 0, 7)
			order, err := svc.CreateJobOrder(cmd.Context(), code, "Demo production batch", devices, due)
			if err != nil {
				return err
			}

			created := 0
			for i := 0; i < devices; i++ {
				serial := "SN-" + strings.ToUpper(uuid.NewString()[:12])
				op := seedOperations[i%len(seedOperations)]
				if _, err := svc.AddTask(cmd.Context(), order.ID, serial, op.name, op.standard); err != nil {
					return err
				}
				created++
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seeded job order %s (id %d) with %d tasks\n", order.Code, order.ID, created)
			return nil
		},
	}
	cmd.Flags().IntVar(&devices, "devices", 4, "Number of devices to seed")
	cmd.Flags().StringVar(&code, "code", "", "Job order code (generated when empty)")
	return cmd
}
