package domain

// FragmentType categorizes entries of the render tree.
type FragmentType string

const (
	FragmentProse      FragmentType = "prose"
	FragmentPanel      FragmentType = "panel"
	FragmentNav        FragmentType = "nav"
	FragmentMap        FragmentType = "map"
	FragmentForm       FragmentType = "form"
	FragmentDiagnostic FragmentType = "diagnostic"
)

// Fragment is one ordered entry of the render tree handed to the
// presentation layer. Content is one of the *View payload types below
// (or a plain string for prose).
type Fragment struct {
	Type    FragmentType `json:"type"`
	BlockID string       `json:"block_id,omitempty"`
	Content any          `json:"content"`
}

// PanelView is the rendered layout of a PANEL block.
type PanelView struct {
	Title string      `json:"title,omitempty"`
	Rows  []PanelRow  `json:"rows"`
}

// PanelRow is one resolved label/value pair of a panel.
type PanelRow struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// NavView lists the choices whose guards passed.
type NavView struct {
	Choices []NavOption `json:"choices"`
}

// NavOption is one exposed navigation choice.
type NavOption struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// MapView is a viewport-clipped tile grid centered on the position variable.
// Rows are top-to-bottom lines of single-tile glyphs.
type MapView struct {
	Title  string   `json:"title,omitempty"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Rows   []string `json:"rows"`
}

// FormView describes the fields the host should collect.
type FormView struct {
	Title  string      `json:"title,omitempty"`
	Fields []FormField `json:"fields"`
}

// Diagnostic is an inline per-block runtime error. Execution of the
// remaining blocks continues using the last good state.
type Diagnostic struct {
	BlockID string `json:"block_id"`
	Message string `json:"message"`
}

// RenderTree is the ordered fragment list produced by one document pass.
type RenderTree []Fragment
