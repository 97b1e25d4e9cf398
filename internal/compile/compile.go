// Package compile turns the external parser's raw block maps into typed,
// validated blocks. All authoring errors (malformed blocks, duplicate STATE
// names, bad conditions, invalid wait schedules) are caught here, before
// execution ever starts, and are never retried.
package compile

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/stanza/internal/expr"
	"github.com/aretw0/stanza/internal/path"
	"github.com/aretw0/stanza/internal/sched"
	"github.com/aretw0/stanza/pkg/domain"
)

// Document compiles a full document from its parsed parts.
func Document(id string, fm domain.Frontmatter, raw []map[string]any) (*domain.Document, error) {
	if id == "" {
		return nil, &domain.AuthoringError{Reason: "document id is required"}
	}
	for name, value := range fm.Variables {
		if err := validVarName(name); err != nil {
			return nil, &domain.AuthoringError{Reason: fmt.Sprintf("frontmatter variable %q: %v", name, err)}
		}
		if _, err := domain.FromGo(value); err != nil {
			return nil, &domain.AuthoringError{Reason: fmt.Sprintf("frontmatter variable %q: %v", name, err)}
		}
	}

	c := &compiler{declared: make(map[string]bool)}
	for name := range fm.Variables {
		c.declared[name] = true
	}
	blocks, err := c.blocks(raw)
	if err != nil {
		return nil, err
	}
	return &domain.Document{ID: id, Frontmatter: fm, Blocks: blocks}, nil
}

// Blocks compiles a bare block list. Used by tests and embedding hosts that
// manage frontmatter themselves.
func Blocks(raw []map[string]any) ([]domain.Block, error) {
	c := &compiler{declared: make(map[string]bool)}
	return c.blocks(raw)
}

type compiler struct {
	seq      int
	declared map[string]bool // STATE names seen anywhere in the document
}

func (c *compiler) nextID() string {
	c.seq++
	return fmt.Sprintf("b%d", c.seq)
}

func (c *compiler) blocks(raw []map[string]any) ([]domain.Block, error) {
	out := make([]domain.Block, 0, len(raw))
	for i, m := range raw {
		block, err := c.block(m)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, block)
	}
	return out, nil
}

func (c *compiler) block(m map[string]any) (domain.Block, error) {
	kindRaw, ok := m["kind"].(string)
	if !ok || kindRaw == "" {
		return domain.Block{}, &domain.AuthoringError{Reason: "block has no kind"}
	}
	kind := domain.BlockKind(kindRaw)
	id, _ := m["id"].(string)
	if id == "" {
		id = c.nextID()
	}
	block := domain.Block{ID: id, Kind: kind}

	var err error
	switch kind {
	case domain.BlockProse:
		err = c.prose(m, &block)
	case domain.BlockState:
		err = c.state(m, &block)
	case domain.BlockSet:
		err = c.set(m, &block)
	case domain.BlockForm:
		err = c.form(m, &block)
	case domain.BlockIf:
		err = c.branch(m, &block)
	case domain.BlockNav:
		err = c.nav(m, &block)
	case domain.BlockPanel:
		err = c.panel(m, &block)
	case domain.BlockMap:
		err = c.mapView(m, &block)
	case domain.BlockWait:
		err = c.wait(m, &block)
	default:
		err = &domain.AuthoringError{BlockID: id, Reason: fmt.Sprintf("unknown block kind %q", kind)}
	}
	if err != nil {
		return domain.Block{}, err
	}
	return block, nil
}

// decode maps a raw block into a kind-specific shape, rejecting unknown keys
// so typos surface as authoring errors instead of silently-ignored fields.
func decode(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

type rawCommon struct {
	ID   string `mapstructure:"id"`
	Kind string `mapstructure:"kind"`
}

func (c *compiler) prose(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Text      string `mapstructure:"text"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	block.Prose = raw.Text
	return nil
}

func (c *compiler) state(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Name      string `mapstructure:"name"`
		Value     any    `mapstructure:"value"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if err := validVarName(raw.Name); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if c.declared[raw.Name] {
		return &domain.DuplicateVariableError{Name: raw.Name}
	}
	c.declared[raw.Name] = true

	value, err := domain.FromGo(raw.Value)
	if err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	block.State = &domain.StateBlock{Name: raw.Name, Value: value}
	return nil
}

type rawMutation struct {
	Target string `mapstructure:"target"`
	Op     string `mapstructure:"op"`
	Value  any    `mapstructure:"value"`
	From   string `mapstructure:"from"`
}

func (c *compiler) mutation(raw rawMutation, blockID string) (domain.Mutation, error) {
	target, err := path.Parse(raw.Target)
	if err != nil {
		return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: err.Error()}
	}
	if target.HasWildcard() {
		return domain.Mutation{}, &domain.AuthoringError{
			BlockID: blockID,
			Reason:  fmt.Sprintf("cannot assign through wildcard path %q", raw.Target),
		}
	}

	op := domain.SetOp(raw.Op)
	if op == "" {
		op = domain.OpAssign
	}
	switch op {
	case domain.OpAssign, domain.OpAdd, domain.OpSub, domain.OpPush, domain.OpPop:
	default:
		return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: fmt.Sprintf("unknown operator %q", raw.Op)}
	}

	mut := domain.Mutation{Target: raw.Target, Op: op}
	switch {
	case raw.From != "" && raw.Value != nil:
		return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: "mutation cannot have both value and from"}
	case raw.From != "":
		if _, err := path.Parse(raw.From); err != nil {
			return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: err.Error()}
		}
		mut.Value = domain.Operand{Path: raw.From}
	case raw.Value != nil:
		lit, err := domain.FromGo(raw.Value)
		if err != nil {
			return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: err.Error()}
		}
		mut.Value = domain.Operand{Literal: lit}
	case op != domain.OpPop:
		return domain.Mutation{}, &domain.AuthoringError{BlockID: blockID, Reason: fmt.Sprintf("operator %q requires a value", op)}
	}
	return mut, nil
}

func (c *compiler) set(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon   `mapstructure:",squash"`
		rawMutation `mapstructure:",squash"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	mut, err := c.mutation(raw.rawMutation, block.ID)
	if err != nil {
		return err
	}
	block.Set = &domain.SetBlock{Mutation: mut}
	return nil
}

var fieldTypes = map[domain.FieldType]bool{
	domain.FieldText:     true,
	domain.FieldNumber:   true,
	domain.FieldToggle:   true,
	domain.FieldChoice:   true,
	domain.FieldCheckbox: true,
}

func (c *compiler) form(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Title     string `mapstructure:"title"`
		Fields    []struct {
			Name     string   `mapstructure:"name"`
			Label    string   `mapstructure:"label"`
			Type     string   `mapstructure:"type"`
			Target   string   `mapstructure:"target"`
			Required bool     `mapstructure:"required"`
			Options  []string `mapstructure:"options"`
		} `mapstructure:"fields"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if len(raw.Fields) == 0 {
		return &domain.AuthoringError{BlockID: block.ID, Reason: "form has no fields"}
	}

	seen := make(map[string]bool, len(raw.Fields))
	fields := make([]domain.FormField, 0, len(raw.Fields))
	for _, f := range raw.Fields {
		if f.Name == "" {
			return &domain.AuthoringError{BlockID: block.ID, Reason: "form field has no name"}
		}
		if seen[f.Name] {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		seen[f.Name] = true

		fieldType := domain.FieldType(f.Type)
		if !fieldTypes[fieldType] {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("field %q: unknown type %q", f.Name, f.Type)}
		}
		needsOptions := fieldType == domain.FieldChoice || fieldType == domain.FieldCheckbox
		if needsOptions && len(f.Options) == 0 {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("field %q: %s fields require options", f.Name, fieldType)}
		}
		if !needsOptions && len(f.Options) > 0 {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("field %q: %s fields cannot have options", f.Name, fieldType)}
		}

		target := f.Target
		if target == "" {
			target = f.Name
		}
		p, err := path.Parse(target)
		if err != nil {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("field %q: %v", f.Name, err)}
		}
		if p.HasWildcard() {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("field %q: cannot target a wildcard path", f.Name)}
		}

		fields = append(fields, domain.FormField{
			Name:     f.Name,
			Label:    f.Label,
			Type:     fieldType,
			Target:   target,
			Required: f.Required,
			Options:  f.Options,
		})
	}
	block.Form = &domain.FormBlock{Title: raw.Title, Fields: fields}
	return nil
}

func (c *compiler) branch(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Cond      string           `mapstructure:"cond"`
		Then      []map[string]any `mapstructure:"then"`
		Elif      []struct {
			Cond string           `mapstructure:"cond"`
			Then []map[string]any `mapstructure:"then"`
		} `mapstructure:"elif"`
		Else []map[string]any `mapstructure:"else"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if raw.Cond == "" {
		return &domain.AuthoringError{BlockID: block.ID, Reason: "if block requires a condition"}
	}

	branches := make([]domain.CondBranch, 0, 1+len(raw.Elif))
	addBranch := func(cond string, body []map[string]any) error {
		if _, err := expr.Compile(cond); err != nil {
			return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
		}
		compiled, err := c.blocks(body)
		if err != nil {
			return err
		}
		branches = append(branches, domain.CondBranch{Cond: cond, Body: compiled})
		return nil
	}

	if err := addBranch(raw.Cond, raw.Then); err != nil {
		return err
	}
	for _, elif := range raw.Elif {
		if elif.Cond == "" {
			return &domain.AuthoringError{BlockID: block.ID, Reason: "elsif requires a condition"}
		}
		if err := addBranch(elif.Cond, elif.Then); err != nil {
			return err
		}
	}

	elseBody, err := c.blocks(raw.Else)
	if err != nil {
		return err
	}
	block.If = &domain.IfBlock{Branches: branches, Else: elseBody}
	return nil
}

func (c *compiler) nav(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Choices   []struct {
			Label     string        `mapstructure:"label"`
			Target    string        `mapstructure:"target"`
			Guard     string        `mapstructure:"guard"`
			Mutations []rawMutation `mapstructure:"mutations"`
		} `mapstructure:"choices"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if len(raw.Choices) == 0 {
		return &domain.AuthoringError{BlockID: block.ID, Reason: "nav block has no choices"}
	}

	seen := make(map[string]bool, len(raw.Choices))
	choices := make([]domain.NavChoice, 0, len(raw.Choices))
	for _, ch := range raw.Choices {
		if ch.Label == "" {
			return &domain.AuthoringError{BlockID: block.ID, Reason: "nav choice has no label"}
		}
		if seen[ch.Label] {
			return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("duplicate choice label %q", ch.Label)}
		}
		seen[ch.Label] = true
		if ch.Guard != "" {
			if _, err := expr.Compile(ch.Guard); err != nil {
				return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
			}
		}
		muts := make([]domain.Mutation, 0, len(ch.Mutations))
		for _, rm := range ch.Mutations {
			mut, err := c.mutation(rm, block.ID)
			if err != nil {
				return err
			}
			muts = append(muts, mut)
		}
		choices = append(choices, domain.NavChoice{
			Label:     ch.Label,
			Target:    ch.Target,
			Guard:     ch.Guard,
			Mutations: muts,
		})
	}
	block.Nav = &domain.NavBlock{Choices: choices}
	return nil
}

func (c *compiler) panel(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Title     string `mapstructure:"title"`
		Items     []struct {
			Label string `mapstructure:"label"`
			Path  string `mapstructure:"path"`
		} `mapstructure:"items"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	items := make([]domain.PanelItem, 0, len(raw.Items))
	for _, it := range raw.Items {
		if _, err := path.Parse(it.Path); err != nil {
			return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
		}
		label := it.Label
		if label == "" {
			label = it.Path
		}
		items = append(items, domain.PanelItem{Label: label, Path: it.Path})
	}
	block.Panel = &domain.PanelBlock{Title: raw.Title, Items: items}
	return nil
}

func (c *compiler) mapView(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon  `mapstructure:",squash"`
		Title      string `mapstructure:"title"`
		TileSource string `mapstructure:"tile_source"`
		Position   string `mapstructure:"position"`
		Width      int    `mapstructure:"width"`
		Height     int    `mapstructure:"height"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	if _, err := path.Parse(raw.TileSource); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("tile_source: %v", err)}
	}
	if _, err := path.Parse(raw.Position); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: fmt.Sprintf("position: %v", err)}
	}
	if raw.Width <= 0 || raw.Height <= 0 {
		return &domain.AuthoringError{BlockID: block.ID, Reason: "map requires a positive width and height"}
	}
	block.Map = &domain.MapBlock{
		Title:      raw.Title,
		TileSource: raw.TileSource,
		Position:   raw.Position,
		Width:      raw.Width,
		Height:     raw.Height,
	}
	return nil
}

func (c *compiler) wait(m map[string]any, block *domain.Block) error {
	var raw struct {
		rawCommon `mapstructure:",squash"`
		Duration  string `mapstructure:"duration"`
		Until     string `mapstructure:"until"`
	}
	if err := decode(m, &raw); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	// Validate the schedule syntax now; the fire time itself is computed at
	// execution time.
	if _, err := sched.FireAt(raw.Duration, raw.Until, time.Now()); err != nil {
		return &domain.AuthoringError{BlockID: block.ID, Reason: err.Error()}
	}
	block.Wait = &domain.WaitBlock{Duration: raw.Duration, Until: raw.Until}
	return nil
}

func validVarName(name string) error {
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	p, err := path.Parse(name)
	if err != nil {
		return err
	}
	if len(p.Segments) != 1 {
		return fmt.Errorf("variable name %q cannot be a path", name)
	}
	return nil
}
