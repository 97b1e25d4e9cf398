package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/internal/presentation/graph"
	"github.com/aretw0/stanza/pkg/adapters/docfile"
)

const questDoc = `id: quest
title: The Quest
variables:
  gold: 100
blocks:
  - kind: form
    id: intro
    fields:
      - name: hero
        type: text
  - kind: if
    id: gate
    cond: gold >= 50
    then:
      - kind: prose
        id: rich
        text: Plenty of coin.
    else:
      - kind: prose
        id: broke
        text: Empty pockets.
  - kind: wait
    id: rest
    duration: 5min
  - kind: nav
    id: doors
    choices:
      - label: North
        target: north-hall
        guard: gold > 0
`

func TestGenerateMermaid(t *testing.T) {
	doc, err := docfile.Parse([]byte(questDoc), "quest")
	require.NoError(t, err)

	out := graph.GenerateMermaid(doc)

	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `__doc__(["The Quest"])`)

	// Shapes per kind.
	assert.Contains(t, out, `intro[/"form: intro"/]`)
	assert.Contains(t, out, `gate{"if: gold >= 50"}`)
	assert.Contains(t, out, `rest(("wait 5min"))`)
	assert.Contains(t, out, `doors{{"nav: doors"}}`)

	// Branch edges carry their condition and rejoin at the next block.
	assert.Contains(t, out, `gate -- "gold >= 50" --> rich`)
	assert.Contains(t, out, `gate -- "else" --> broke`)
	assert.Contains(t, out, "rich --> rest")
	assert.Contains(t, out, "broke --> rest")

	// Nav targets are dotted jumps labeled with the guard.
	assert.Contains(t, out, `doors -. "gold > 0" .-> north_hall_t`)
}

func TestGenerateMermaidSanitizesIDs(t *testing.T) {
	doc, err := docfile.Parse([]byte("id: d\nblocks:\n  - kind: prose\n    id: a-b.c\n    text: hi\n"), "d")
	require.NoError(t, err)

	out := graph.GenerateMermaid(doc)
	assert.Contains(t, out, "a_b_c[")
	assert.NotContains(t, out, "a-b.c[")
}
