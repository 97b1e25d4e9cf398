package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/stanza/pkg/adapters/docfile"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file...]",
	Short: "Check documents for authoring errors",
	Long:  `Compiles the given document files, or every document under --dir, and reports unknown block keys, bad expressions, duplicate variables and invalid wait schedules.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		if len(args) > 0 {
			for _, path := range args {
				if _, err := docfile.Load(path); err != nil {
					fmt.Fprintf(os.Stderr, "✗ %v\n", err)
					failed++
					continue
				}
				fmt.Printf("✓ %s\n", path)
			}
		} else {
			dir, _ := cmd.Flags().GetString("dir")
			docs, err := docfile.LoadDir(dir)
			if err != nil {
				return err
			}
			for id := range docs {
				fmt.Printf("✓ %s\n", id)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed validation", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
