package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/stanza/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a document's block
// structure. It applies semantic shapes:
// - WAIT: ((Circle))
// - FORM: [/Parallelogram/] (input)
// - IF: {Diamond} (decision)
// - NAV: {{Hexagon}}
// - Default: [Rectangle]
// IF branch bodies rejoin at the block that follows the IF, and NAV
// targets are drawn as dotted jumps labeled with their guard.
func GenerateMermaid(doc *domain.Document) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	title := doc.Frontmatter.Title
	if title == "" {
		title = doc.ID
	}
	sb.WriteString(fmt.Sprintf("    __doc__([\"%s\"])\n", escapeMermaid(title)))

	walkBlocks(&sb, doc.Blocks, "__doc__", "")
	return sb.String()
}

// walkBlocks emits nodes for a block list, chaining each to the previous,
// and returns the IDs the tail of the list flows out of.
func walkBlocks(sb *strings.Builder, blocks []domain.Block, from string, edgeLabel string) []string {
	heads := []string{from}
	label := edgeLabel
	for i := range blocks {
		block := &blocks[i]
		safeID := sanitizeMermaidID(block.ID)
		sb.WriteString(nodeLine(safeID, block))

		for _, head := range heads {
			sb.WriteString(edgeLine(head, safeID, label))
		}
		label = ""

		switch block.Kind {
		case domain.BlockIf:
			heads = nil
			for b, branch := range block.If.Branches {
				cond := escapeMermaid(branch.Cond)
				if b > 0 {
					cond = "elif: " + cond
				}
				heads = append(heads, walkBlocks(sb, branch.Body, safeID, cond)...)
			}
			if len(block.If.Else) > 0 {
				heads = append(heads, walkBlocks(sb, block.If.Else, safeID, "else")...)
			} else {
				// No else arm: execution may fall straight through.
				heads = append(heads, safeID)
			}
		case domain.BlockNav:
			for _, choice := range block.Nav.Choices {
				target := sanitizeMermaidID(choice.Target)
				sb.WriteString(fmt.Sprintf("    %s_t([\"%s\"])\n", target, escapeMermaid(choice.Target)))
				arrow := "-.->"
				if choice.Guard != "" {
					arrow = fmt.Sprintf("-. \"%s\" .->", escapeMermaid(choice.Guard))
				}
				sb.WriteString(fmt.Sprintf("    %s %s %s_t\n", safeID, arrow, target))
			}
			heads = []string{safeID}
		default:
			heads = []string{safeID}
		}
	}
	return heads
}

func nodeLine(safeID string, block *domain.Block) string {
	opener, closer := "[", "]"
	text := string(block.Kind) + ": " + block.ID

	switch block.Kind {
	case domain.BlockWait:
		opener, closer = "((", "))"
		spec := block.Wait.Duration
		if spec == "" {
			spec = block.Wait.Until
		}
		text = "wait " + spec
	case domain.BlockForm:
		opener, closer = "[/", "/]"
	case domain.BlockIf:
		opener, closer = "{", "}"
		text = "if: " + block.If.Branches[0].Cond
	case domain.BlockNav:
		opener, closer = "{{", "}}"
	case domain.BlockState:
		text = "state: " + block.State.Name
	case domain.BlockSet:
		text = fmt.Sprintf("set: %s %s", block.Set.Target, block.Set.Op)
	}

	return fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escapeMermaid(text), closer)
}

func edgeLine(from, to, label string) string {
	if label != "" {
		return fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, label, to)
	}
	return fmt.Sprintf("    %s --> %s\n", from, to)
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
