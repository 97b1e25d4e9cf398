package compile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/stanza/pkg/domain"
)

func TestCompileDocument(t *testing.T) {
	doc, err := Document("inn", domain.Frontmatter{
		Title:     "The Inn",
		Variables: map[string]any{"visits": 0},
	}, []map[string]any{
		{"kind": "prose", "text": "Welcome back."},
		{"kind": "state", "name": "gold", "value": 100},
		{"kind": "set", "target": "gold", "op": "-=", "value": 10},
	})
	require.NoError(t, err)
	require.Len(t, doc.Blocks, 3)

	assert.Equal(t, domain.BlockProse, doc.Blocks[0].Kind)
	assert.Equal(t, "Welcome back.", doc.Blocks[0].Prose)

	require.NotNil(t, doc.Blocks[1].State)
	assert.Equal(t, "gold", doc.Blocks[1].State.Name)
	assert.Equal(t, domain.Number(100), doc.Blocks[1].State.Value)

	require.NotNil(t, doc.Blocks[2].Set)
	assert.Equal(t, domain.OpSub, doc.Blocks[2].Set.Op)
	assert.Equal(t, domain.Number(10), doc.Blocks[2].Set.Value.Literal)
}

func TestCompileAssignsStableIDs(t *testing.T) {
	blocks, err := Blocks([]map[string]any{
		{"kind": "prose", "text": "a"},
		{"kind": "prose", "text": "b", "id": "intro"},
		{"kind": "if", "cond": "true", "then": []map[string]any{
			{"kind": "prose", "text": "nested"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", blocks[0].ID)
	assert.Equal(t, "intro", blocks[1].ID)
	assert.Equal(t, "b2", blocks[2].ID)
	assert.Equal(t, "b3", blocks[2].If.Branches[0].Body[0].ID)
}

func TestCompileDuplicateState(t *testing.T) {
	_, err := Blocks([]map[string]any{
		{"kind": "state", "name": "gold", "value": 1},
		{"kind": "state", "name": "gold", "value": 2},
	})
	var dup *domain.DuplicateVariableError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "gold", dup.Name)
}

func TestCompileDuplicateStateInsideBranch(t *testing.T) {
	_, err := Blocks([]map[string]any{
		{"kind": "state", "name": "gold", "value": 1},
		{"kind": "if", "cond": "true", "then": []map[string]any{
			{"kind": "state", "name": "gold", "value": 2},
		}},
	})
	var dup *domain.DuplicateVariableError
	require.ErrorAs(t, err, &dup)
}

func TestCompileRejectsUnknownKeys(t *testing.T) {
	_, err := Blocks([]map[string]any{
		{"kind": "state", "name": "gold", "valeu": 1},
	})
	var authoring *domain.AuthoringError
	require.ErrorAs(t, err, &authoring)
	assert.Contains(t, authoring.Reason, "valeu")
}

func TestCompileSet(t *testing.T) {
	t.Run("from path", func(t *testing.T) {
		blocks, err := Blocks([]map[string]any{
			{"kind": "set", "target": "copy", "from": "inventory[0]"},
		})
		require.NoError(t, err)
		assert.Equal(t, domain.OpAssign, blocks[0].Set.Op)
		assert.Equal(t, "inventory[0]", blocks[0].Set.Value.Path)
	})

	t.Run("pop needs no value", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "set", "target": "inventory", "op": "pop"},
		})
		assert.NoError(t, err)
	})

	t.Run("wildcard target rejected", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "set", "target": "party[*].hp", "value": 10},
		})
		var authoring *domain.AuthoringError
		require.ErrorAs(t, err, &authoring)
		assert.Contains(t, authoring.Reason, "wildcard")
	})

	t.Run("value and from are exclusive", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "set", "target": "a", "value": 1, "from": "b"},
		})
		assert.Error(t, err)
	})

	t.Run("unknown operator", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "set", "target": "a", "op": "*=", "value": 2},
		})
		assert.Error(t, err)
	})
}

func TestCompileForm(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		blocks, err := Blocks([]map[string]any{
			{"kind": "form", "title": "Character", "fields": []map[string]any{
				{"name": "name", "type": "text", "required": true},
				{"name": "class", "type": "choice", "options": []string{"warrior", "mage"}},
			}},
		})
		require.NoError(t, err)
		form := blocks[0].Form
		require.NotNil(t, form)
		assert.Equal(t, "name", form.Fields[0].Target)
		assert.Equal(t, []string{"warrior", "mage"}, form.Fields[1].Options)
	})

	t.Run("choice without options", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "form", "fields": []map[string]any{
				{"name": "class", "type": "choice"},
			}},
		})
		assert.Error(t, err)
	})

	t.Run("options on text field", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "form", "fields": []map[string]any{
				{"name": "name", "type": "text", "options": []string{"x"}},
			}},
		})
		assert.Error(t, err)
	})

	t.Run("duplicate field names", func(t *testing.T) {
		_, err := Blocks([]map[string]any{
			{"kind": "form", "fields": []map[string]any{
				{"name": "name", "type": "text"},
				{"name": "name", "type": "text"},
			}},
		})
		assert.Error(t, err)
	})
}

func TestCompileIf(t *testing.T) {
	blocks, err := Blocks([]map[string]any{
		{
			"kind": "if", "cond": "gold >= 100",
			"then": []map[string]any{{"kind": "prose", "text": "rich"}},
			"elif": []map[string]any{
				{"cond": "gold >= 10", "then": []map[string]any{{"kind": "prose", "text": "ok"}}},
			},
			"else": []map[string]any{{"kind": "prose", "text": "broke"}},
		},
	})
	require.NoError(t, err)
	ifb := blocks[0].If
	require.NotNil(t, ifb)
	require.Len(t, ifb.Branches, 2)
	assert.Equal(t, "gold >= 100", ifb.Branches[0].Cond)
	assert.Equal(t, "gold >= 10", ifb.Branches[1].Cond)
	require.Len(t, ifb.Else, 1)

	_, err = Blocks([]map[string]any{
		{"kind": "if", "cond": "gold >= 09:00", "then": []map[string]any{}},
	})
	assert.Error(t, err, "bad condition is an authoring error")
}

func TestCompileNav(t *testing.T) {
	blocks, err := Blocks([]map[string]any{
		{"kind": "nav", "choices": []map[string]any{
			{"label": "Enter the vault", "target": "vault", "guard": "has_key == true"},
			{"label": "Leave", "target": "street", "mutations": []map[string]any{
				{"target": "visits", "op": "+=", "value": 1},
			}},
		}},
	})
	require.NoError(t, err)
	nav := blocks[0].Nav
	require.NotNil(t, nav)
	assert.Equal(t, "has_key == true", nav.Choices[0].Guard)
	require.Len(t, nav.Choices[1].Mutations, 1)
	assert.Equal(t, domain.OpAdd, nav.Choices[1].Mutations[0].Op)

	_, err = Blocks([]map[string]any{
		{"kind": "nav", "choices": []map[string]any{
			{"label": "Go", "target": "a"},
			{"label": "Go", "target": "b"},
		}},
	})
	assert.Error(t, err, "duplicate labels are ambiguous")
}

func TestCompileMap(t *testing.T) {
	blocks, err := Blocks([]map[string]any{
		{"kind": "map", "tile_source": "$db.tiles", "position": "pos", "width": 9, "height": 5},
	})
	require.NoError(t, err)
	require.NotNil(t, blocks[0].Map)
	assert.Equal(t, "$db.tiles", blocks[0].Map.TileSource)

	_, err = Blocks([]map[string]any{
		{"kind": "map", "tile_source": "$db.tiles", "position": "pos", "width": 0, "height": 5},
	})
	assert.Error(t, err)
}

func TestCompileWait(t *testing.T) {
	for _, valid := range []map[string]any{
		{"kind": "wait", "duration": "5min"},
		{"kind": "wait", "until": "tomorrow 08:00"},
	} {
		_, err := Blocks([]map[string]any{valid})
		assert.NoError(t, err)
	}

	for _, invalid := range []map[string]any{
		{"kind": "wait"},
		{"kind": "wait", "duration": "5min", "until": "tomorrow"},
		{"kind": "wait", "duration": "eventually"},
		{"kind": "wait", "until": "the heat death of the universe"},
	} {
		_, err := Blocks([]map[string]any{invalid})
		assert.Error(t, err)
	}
}

func TestCompileUnknownKind(t *testing.T) {
	_, err := Blocks([]map[string]any{{"kind": "teleport"}})
	var authoring *domain.AuthoringError
	require.ErrorAs(t, err, &authoring)

	_, err = Blocks([]map[string]any{{"text": "no kind"}})
	assert.Error(t, err)
}

func TestCompileFrontmatterValidation(t *testing.T) {
	_, err := Document("d", domain.Frontmatter{
		Variables: map[string]any{"bad name!": 1},
	}, nil)
	assert.Error(t, err)

	_, err = Document("", domain.Frontmatter{}, nil)
	assert.Error(t, err)
}
