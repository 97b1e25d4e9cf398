package path

import (
	"testing"

	"github.com/aretw0/stanza/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func row(pairs ...any) *domain.Object {
	obj := domain.NewObject()
	for i := 0; i+1 < len(pairs); i += 2 {
		v, err := domain.FromGo(pairs[i+1])
		if err != nil {
			panic(err)
		}
		obj.Set(pairs[i].(string), v)
	}
	return obj
}

func TestParse(t *testing.T) {
	t.Run("root with sigil", func(t *testing.T) {
		p, err := Parse("$gold")
		require.NoError(t, err)
		assert.Equal(t, "gold", p.Root())
		assert.Len(t, p.Segments, 1)
	})

	t.Run("dotted and bracket", func(t *testing.T) {
		p, err := Parse("db.npc[2].name")
		require.NoError(t, err)
		require.Len(t, p.Segments, 4)
		assert.Equal(t, SegIndex, p.Segments[2].Kind)
		assert.Equal(t, 2, p.Segments[2].Index)
		assert.Equal(t, "db.npc[2].name", p.String())
	})

	t.Run("wildcard", func(t *testing.T) {
		p, err := Parse("$db.npc[*].name")
		require.NoError(t, err)
		assert.True(t, p.HasWildcard())
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", ".", "a..b", "a[", "a[x]", "[0]", "a.", "a[-1]", "9lives"} {
			_, err := Parse(raw)
			assert.Error(t, err, "expected error for %q", raw)
		}
	})
}

func TestResolvePermissive(t *testing.T) {
	root := row("hero", map[string]any{"hp": 10.0, "bag": []any{"sword", "rope"}})
	hero, _ := root.Get("hero")

	t.Run("missing key is null", func(t *testing.T) {
		p, _ := Parse("hero.mana")
		assert.Equal(t, domain.Null{}, Resolve(hero, p.Segments[1:]))
	})

	t.Run("out of range index is null", func(t *testing.T) {
		p, _ := Parse("hero.bag[5]")
		assert.Equal(t, domain.Null{}, Resolve(hero, p.Segments[1:]))
	})

	t.Run("field on scalar is null", func(t *testing.T) {
		p, _ := Parse("hero.hp.deep")
		assert.Equal(t, domain.Null{}, Resolve(hero, p.Segments[1:]))
	})
}

func TestResolveWildcard(t *testing.T) {
	npcs := domain.Array{
		row("name", "Ada"),
		row("name", "Bo"),
		row("hp", 3.0), // no name
	}

	t.Run("maps remainder over elements", func(t *testing.T) {
		p, _ := Parse("npc[*].name")
		result := Resolve(npcs, p.Segments[1:])
		arr, ok := result.(domain.Array)
		require.True(t, ok)
		require.Len(t, arr, 3)
		assert.Equal(t, domain.String("Ada"), arr[0])
		assert.Equal(t, domain.String("Bo"), arr[1])
		assert.Equal(t, domain.Null{}, arr[2])
	})

	t.Run("wildcard on non-array is empty array", func(t *testing.T) {
		p, _ := Parse("x[*]")
		result := Resolve(domain.Number(7), p.Segments[1:])
		arr, ok := result.(domain.Array)
		require.True(t, ok)
		assert.Len(t, arr, 0)
	})

	t.Run("chained wildcards flatten one level", func(t *testing.T) {
		parties := domain.Array{
			row("members", []any{map[string]any{"name": "Ada"}, map[string]any{"name": "Bo"}}),
			row("members", []any{map[string]any{"name": "Cy"}}),
		}
		p, _ := Parse("g[*].members[*].name")
		result := Resolve(parties, p.Segments[1:])
		arr, ok := result.(domain.Array)
		require.True(t, ok)
		require.Len(t, arr, 3)
		assert.Equal(t, domain.String("Cy"), arr[2])
	})
}

func TestAssign(t *testing.T) {
	t.Run("nested object write", func(t *testing.T) {
		hero := row("stats", map[string]any{"hp": 10.0})
		p, _ := Parse("hero.stats.hp")
		_, err := Assign(hero, p.Segments[1:], domain.Number(7))
		require.NoError(t, err)
		stats, _ := hero.Get("stats")
		hp, _ := stats.(*domain.Object).Get("hp")
		assert.Equal(t, domain.Number(7), hp)
	})

	t.Run("index write", func(t *testing.T) {
		bag := domain.Array{domain.String("sword"), domain.String("rope")}
		p, _ := Parse("bag[1]")
		_, err := Assign(bag, p.Segments[1:], domain.String("torch"))
		require.NoError(t, err)
		assert.Equal(t, domain.String("torch"), bag[1])
	})

	t.Run("out of range write fails", func(t *testing.T) {
		bag := domain.Array{domain.String("sword")}
		p, _ := Parse("bag[4]")
		_, err := Assign(bag, p.Segments[1:], domain.String("torch"))
		assert.Error(t, err)
	})

	t.Run("wildcard write rejected", func(t *testing.T) {
		npcs := domain.Array{row("name", "Ada")}
		p, _ := Parse("npc[*].name")
		_, err := Assign(npcs, p.Segments[1:], domain.String("X"))
		assert.Error(t, err)
	})

	t.Run("replacing the root", func(t *testing.T) {
		p, _ := Parse("gold")
		got, err := Assign(domain.Number(100), p.Segments[1:], domain.Number(50))
		require.NoError(t, err)
		assert.Equal(t, domain.Number(50), got)
	})
}
