// Package tui renders a document's fragment tree for the terminal.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"github.com/aretw0/stanza/pkg/domain"
)

// Renderer turns a render tree into styled terminal output. Prose runs
// through glamour as markdown; structured fragments get plain layouts so
// alignment survives any terminal width.
type Renderer struct {
	md      *glamour.TermRenderer
	profile termenv.Profile
}

// NewRenderer builds a renderer that adapts to the terminal background.
func NewRenderer() *Renderer {
	md, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	return &Renderer{
		md:      md,
		profile: termenv.ColorProfile(),
	}
}

// Render renders the full tree in order.
func (r *Renderer) Render(tree domain.RenderTree) string {
	var sb strings.Builder
	for _, fragment := range tree {
		switch fragment.Type {
		case domain.FragmentProse:
			sb.WriteString(r.prose(fragment))
		case domain.FragmentPanel:
			sb.WriteString(r.panel(fragment))
		case domain.FragmentNav:
			sb.WriteString(r.nav(fragment))
		case domain.FragmentMap:
			sb.WriteString(r.mapView(fragment))
		case domain.FragmentForm:
			sb.WriteString(r.form(fragment))
		case domain.FragmentDiagnostic:
			sb.WriteString(r.diagnostic(fragment))
		}
	}
	return sb.String()
}

func (r *Renderer) prose(fragment domain.Fragment) string {
	text, _ := fragment.Content.(string)
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			return out
		}
	}
	return text + "\n"
}

func (r *Renderer) panel(fragment domain.Fragment) string {
	view, ok := fragment.Content.(domain.PanelView)
	if !ok {
		return ""
	}
	var sb strings.Builder
	if view.Title != "" {
		sb.WriteString(r.heading(view.Title))
	}
	width := 0
	for _, row := range view.Rows {
		if len(row.Label) > width {
			width = len(row.Label)
		}
	}
	for _, row := range view.Rows {
		fmt.Fprintf(&sb, "  %-*s  %s\n", width+1, row.Label+":", row.Value)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) nav(fragment domain.Fragment) string {
	view, ok := fragment.Content.(domain.NavView)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for i, choice := range view.Choices {
		num := r.profile.String(fmt.Sprintf("[%d]", i+1)).Foreground(r.profile.Color("#818cf8"))
		fmt.Fprintf(&sb, "  %s %s\n", num, choice.Label)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) mapView(fragment domain.Fragment) string {
	view, ok := fragment.Content.(domain.MapView)
	if !ok {
		return ""
	}
	var sb strings.Builder
	if view.Title != "" {
		sb.WriteString(r.heading(view.Title))
	}
	border := "  +" + strings.Repeat("-", view.Width) + "+\n"
	sb.WriteString(border)
	for _, row := range view.Rows {
		fmt.Fprintf(&sb, "  |%s|\n", row)
	}
	sb.WriteString(border)
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) form(fragment domain.Fragment) string {
	view, ok := fragment.Content.(domain.FormView)
	if !ok {
		return ""
	}
	var sb strings.Builder
	if view.Title != "" {
		sb.WriteString(r.heading(view.Title))
	}
	for _, field := range view.Fields {
		label := field.Label
		if label == "" {
			label = field.Name
		}
		marker := " "
		if field.Required {
			marker = "*"
		}
		fmt.Fprintf(&sb, "  %s %s (%s)", marker, label, field.Type)
		if len(field.Options) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(field.Options, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Renderer) diagnostic(fragment domain.Fragment) string {
	diag, ok := fragment.Content.(domain.Diagnostic)
	if !ok {
		return ""
	}
	msg := r.profile.String(fmt.Sprintf("  ! %s (block %s)", diag.Message, diag.BlockID)).
		Foreground(r.profile.Color("#fb7185"))
	return msg.String() + "\n\n"
}

func (r *Renderer) heading(title string) string {
	styled := r.profile.String(title).Bold()
	return "  " + styled.String() + "\n"
}
