package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/stanza"
	"github.com/aretw0/stanza/internal/presentation/tui"
	"github.com/aretw0/stanza/pkg/domain"
)

var runCmd = &cobra.Command{
	Use:   "run [document]",
	Short: "Run a document interactively",
	Long:  `Executes a document in the terminal. Navigation choices are picked by number, forms are filled field by field, and fired waits show up on the next render.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docID := ""
		if len(args) > 0 {
			docID = args[0]
		}
		jsonMode, _ := cmd.Flags().GetBool("json")

		eng, err := buildEngine(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if err := eng.Start(ctx); err != nil {
			return err
		}
		defer eng.Stop()

		if docID == "" {
			docID, err = pickDocument(eng)
			if err != nil {
				return err
			}
		}

		if jsonMode {
			return runNDJSON(ctx, eng, docID)
		}
		return runInteractive(ctx, eng, docID)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("json", false, "NDJSON input/output instead of the TUI")
}

func pickDocument(eng *stanza.Engine) (string, error) {
	docs := eng.Documents()
	switch len(docs) {
	case 0:
		return "", fmt.Errorf("no documents found (use --dir)")
	case 1:
		return docs[0], nil
	default:
		sort.Strings(docs)
		return "", fmt.Errorf("several documents found, pick one: %s", strings.Join(docs, ", "))
	}
}

// navEntry is one numbered choice in the prompt, remembering which nav
// block it came from.
type navEntry struct {
	blockID string
	label   string
}

func runInteractive(ctx context.Context, eng *stanza.Engine, docID string) error {
	renderer := tui.NewRenderer()
	reader := bufio.NewReader(os.Stdin)
	tui.PrintBanner()

	for {
		tree, err := eng.Render(ctx, docID)
		if err != nil {
			return err
		}
		fmt.Print(renderer.Render(tree))

		choices := collectChoices(tree)
		forms := collectForms(tree)

		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		input := strings.TrimSpace(line)

		switch {
		case input == "exit" || input == "quit":
			fmt.Println("Bye!")
			return nil
		case input == "":
			// Re-render, picking up any waits that fired meanwhile.
			continue
		case input == "fill" && len(forms) > 0:
			if err := fillForm(ctx, eng, docID, reader, forms[0]); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		default:
			n, convErr := strconv.Atoi(input)
			if convErr != nil || n < 1 || n > len(choices) {
				fmt.Println("Enter a choice number, 'fill', or 'exit'.")
				continue
			}
			pick := choices[n-1]
			if _, target, err := eng.Choose(ctx, docID, pick.blockID, pick.label); err != nil {
				fmt.Printf("Error: %v\n", err)
			} else if target != "" {
				fmt.Printf("-> %s\n", target)
			}
		}
	}
}

func collectChoices(tree domain.RenderTree) []navEntry {
	var out []navEntry
	for _, fragment := range tree {
		if fragment.Type != domain.FragmentNav {
			continue
		}
		view, ok := fragment.Content.(domain.NavView)
		if !ok {
			continue
		}
		for _, choice := range view.Choices {
			out = append(out, navEntry{blockID: fragment.BlockID, label: choice.Label})
		}
	}
	return out
}

func collectForms(tree domain.RenderTree) []domain.Fragment {
	var out []domain.Fragment
	for _, fragment := range tree {
		if fragment.Type == domain.FragmentForm {
			out = append(out, fragment)
		}
	}
	return out
}

// fillForm prompts for each field and submits the collected values.
// Blank answers leave optional fields out so defaults apply.
func fillForm(ctx context.Context, eng *stanza.Engine, docID string, reader *bufio.Reader, fragment domain.Fragment) error {
	view, ok := fragment.Content.(domain.FormView)
	if !ok {
		return fmt.Errorf("block %s is not a form", fragment.BlockID)
	}

	values := make(map[string]any, len(view.Fields))
	for _, field := range view.Fields {
		label := field.Label
		if label == "" {
			label = field.Name
		}
		if len(field.Options) > 0 {
			fmt.Printf("%s (%s): ", label, strings.Join(field.Options, "/"))
		} else {
			fmt.Printf("%s (%s): ", label, field.Type)
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		answer := strings.TrimSpace(line)
		if answer == "" {
			continue
		}
		values[field.Name] = fieldValue(field, answer)
	}

	_, err := eng.Submit(ctx, docID, fragment.BlockID, values)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			for _, fieldErr := range verr.Fields {
				fmt.Printf("  %s: %s\n", fieldErr.Field, fieldErr.Reason)
			}
			return nil
		}
	}
	return err
}

// fieldValue turns a typed answer into the shape Submit expects. Coercion
// and validation proper happen inside the engine.
func fieldValue(field domain.FormField, answer string) any {
	switch field.Type {
	case domain.FieldNumber:
		if n, err := strconv.ParseFloat(answer, 64); err == nil {
			return n
		}
	case domain.FieldToggle:
		if b, err := strconv.ParseBool(answer); err == nil {
			return b
		}
	case domain.FieldCheckbox:
		parts := strings.Split(answer, ",")
		picked := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				picked = append(picked, p)
			}
		}
		return picked
	}
	return answer
}
