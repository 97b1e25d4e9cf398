package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List waits persisted in the scheduler store",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}

		items, err := eng.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No pending waits.")
			return nil
		}
		for _, item := range items {
			fireAt := time.Unix(item.FireAtEpoch, 0).Local().Format(time.RFC3339)
			fmt.Printf("%s  %s/%s  fires %s\n", item.ID, item.DocumentID, item.BlockID, fireAt)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
