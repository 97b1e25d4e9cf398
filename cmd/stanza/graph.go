package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/stanza/internal/presentation/graph"
	"github.com/aretw0/stanza/pkg/adapters/docfile"
)

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Export a document's block structure as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := docfile.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Print(graph.GenerateMermaid(doc))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
