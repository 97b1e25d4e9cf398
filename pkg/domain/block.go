package domain

// BlockKind discriminates the declarative block union.
type BlockKind string

const (
	BlockProse BlockKind = "prose"
	BlockState BlockKind = "state"
	BlockSet   BlockKind = "set"
	BlockForm  BlockKind = "form"
	BlockIf    BlockKind = "if"
	BlockNav   BlockKind = "nav"
	BlockPanel BlockKind = "panel"
	BlockMap   BlockKind = "map"
	BlockWait  BlockKind = "wait"
)

// Block is one declarative unit of a document. Exactly one of the
// kind-specific fields is populated, matching Kind.
type Block struct {
	ID   string    `json:"id"`
	Kind BlockKind `json:"kind"`

	Prose string      `json:"prose,omitempty"`
	State *StateBlock `json:"state,omitempty"`
	Set   *SetBlock   `json:"set,omitempty"`
	Form  *FormBlock  `json:"form,omitempty"`
	If    *IfBlock    `json:"if,omitempty"`
	Nav   *NavBlock   `json:"nav,omitempty"`
	Panel *PanelBlock `json:"panel,omitempty"`
	Map   *MapBlock   `json:"map,omitempty"`
	Wait  *WaitBlock  `json:"wait,omitempty"`
}

// StateBlock declares a variable with its initial value.
// Redeclaring an existing name is an authoring error.
type StateBlock struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// SetOp enumerates the mutation operators supported by SET.
type SetOp string

const (
	OpAssign SetOp = "="
	OpAdd    SetOp = "+="
	OpSub    SetOp = "-="
	OpPush   SetOp = "push"
	OpPop    SetOp = "pop"
)

// Operand is a value source for a mutation: either a literal or a path
// reference resolved against current state at execution time.
type Operand struct {
	Path    string `json:"path,omitempty"`
	Literal Value  `json:"literal,omitempty"`
}

// Mutation is a single SET-style operation against a target path.
type Mutation struct {
	Target string  `json:"target"`
	Op     SetOp   `json:"op"`
	Value  Operand `json:"value,omitempty"`
}

// SetBlock applies one mutation to existing state.
type SetBlock struct {
	Mutation `json:",inline"`
}

// FieldType enumerates the typed FORM field kinds.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldToggle   FieldType = "toggle"
	FieldChoice   FieldType = "choice"
	FieldCheckbox FieldType = "checkbox"
)

// FormField describes one typed input of a FORM block.
// Target names the state variable (or path) the submitted value is written to.
type FormField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Target   string    `json:"target"`
	Required bool      `json:"required,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// FormBlock declares a set of typed fields. Submission is all-or-nothing:
// every field is validated before any is written.
type FormBlock struct {
	Title  string      `json:"title,omitempty"`
	Fields []FormField `json:"fields"`
}

// CondBranch is one guarded arm of an IF block.
type CondBranch struct {
	Cond string  `json:"cond"`
	Body []Block `json:"body"`
}

// IfBlock chains an IF branch, ordered elsif branches, and an optional else.
// Exactly one branch's body executes.
type IfBlock struct {
	Branches []CondBranch `json:"branches"`
	Else     []Block      `json:"else,omitempty"`
}

// NavChoice is one selectable navigation option. Guard, when present, must
// evaluate true for the choice to be exposed. Mutations are applied
// atomically when the choice is selected.
type NavChoice struct {
	Label     string     `json:"label"`
	Target    string     `json:"target"`
	Guard     string     `json:"guard,omitempty"`
	Mutations []Mutation `json:"mutations,omitempty"`
}

// NavBlock lists navigation choices.
type NavBlock struct {
	Choices []NavChoice `json:"choices"`
}

// PanelItem is one labeled read-out of a PANEL block.
type PanelItem struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// PanelBlock is a pure read-only presentation of current state.
type PanelBlock struct {
	Title string      `json:"title,omitempty"`
	Items []PanelItem `json:"items"`
}

// MapBlock renders a tile grid clipped to a viewport centered on the
// position variable. TileSource typically names a database binding whose
// rows carry x, y, and tile fields.
type MapBlock struct {
	Title      string `json:"title,omitempty"`
	TileSource string `json:"tile_source"`
	Position   string `json:"position"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// WaitBlock suspends execution until a fire time computed from either a
// relative duration ("5min", "2h", "30s") or a schedule expression
// ("tomorrow", "tomorrow 08:00", "2026-01-02 08:00").
type WaitBlock struct {
	Duration string `json:"duration,omitempty"`
	Until    string `json:"until,omitempty"`
}

// Frontmatter carries the per-document configuration produced by the
// external markdown parser alongside the block list.
type Frontmatter struct {
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`
	Bind      []string       `json:"bind,omitempty" yaml:"bind,omitempty"`
	Variables map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
}

// Document is a parsed document: identity, frontmatter config, and the
// ordered block list.
type Document struct {
	ID          string      `json:"id"`
	Frontmatter Frontmatter `json:"frontmatter"`
	Blocks      []Block     `json:"blocks"`
}
