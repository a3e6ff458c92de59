package entity

type Viewport struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var (
	ViewportDesktop = Viewport{Name: "desktop", Width: 1366, Height: 832}
	ViewportTablet  = Viewport{Name: "tablet", Width: 834, Height: 1112}
	ViewportMobile  = Viewport{Name: "mobile", Width: 390, Height: 844}
)

// ViewportFocus names the crop taken around an open dialog.
const ViewportFocus = "focus"

type Screenshot struct {
	Viewport string
	Data     []byte
	Format   string
	Width    int
	Height   int
	// Ref is where the image was stored; empty until persisted.
	Ref string
}

// Candidate is one element a browser adapter found for a selector query.
type Candidate struct {
	Handle  string
	Visible bool
	Enabled bool
	Rect    Rect
}

func (c Candidate) Actionable() bool {
	return c.Visible && c.Enabled
}

// Query asks a browser adapter for elements under one strategy. Role
// queries use Role and Name; the other strategies use Value.
type Query struct {
	Strategy Strategy
	Role     string
	Name     string
	Value    string
}
