package tui

import (
	"testing"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/aretw0/stanza/pkg/domain"
)

func plainRenderer() *Renderer {
	// No glamour and a plain profile keep assertions free of escape codes.
	return &Renderer{profile: termenv.Ascii}
}

func TestRenderPanelAlignment(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentPanel, Content: domain.PanelView{
			Title: "Purse",
			Rows: []domain.PanelRow{
				{Label: "Gold", Value: "70"},
				{Label: "Reputation", Value: "high"},
			},
		}},
	})
	assert.Contains(t, out, "Purse")
	assert.Contains(t, out, "Gold:        70")
	assert.Contains(t, out, "Reputation:  high")
}

func TestRenderNavNumbersChoices(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentNav, Content: domain.NavView{
			Choices: []domain.NavOption{
				{Label: "Vault", Target: "vault"},
				{Label: "Street", Target: "street"},
			},
		}},
	})
	assert.Contains(t, out, "[1] Vault")
	assert.Contains(t, out, "[2] Street")
}

func TestRenderMapBorder(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentMap, Content: domain.MapView{
			Width: 3, Height: 1, Rows: []string{" @ "},
		}},
	})
	assert.Contains(t, out, "+---+")
	assert.Contains(t, out, "| @ |")
}

func TestRenderFormFields(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentForm, Content: domain.FormView{
			Title: "Order",
			Fields: []domain.FormField{
				{Name: "drink", Type: domain.FieldChoice, Required: true, Options: []string{"ale", "cider"}},
			},
		}},
	})
	assert.Contains(t, out, "* drink (choice) [ale, cider]")
}

func TestRenderDiagnostic(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentDiagnostic, Content: domain.Diagnostic{
			BlockID: "b3", Message: "type mismatch",
		}},
	})
	assert.Contains(t, out, "! type mismatch (block b3)")
}

func TestRenderProseWithoutMarkdownRenderer(t *testing.T) {
	out := plainRenderer().Render(domain.RenderTree{
		{Type: domain.FragmentProse, Content: "You enter the inn."},
	})
	assert.Equal(t, "You enter the inn.\n", out)
}
