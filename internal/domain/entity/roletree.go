package entity

import (
	"strconv"
	"strings"
	"time"
)

// MaxRoleNodes caps how many nodes a single snapshot keeps.
const MaxRoleNodes = 200

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

type NodeFlags struct {
	Modal    bool `json:"modal,omitempty"`
	Busy     bool `json:"busy,omitempty"`
	Disabled bool `json:"disabled,omitempty"`
	Checked  bool `json:"checked,omitempty"`
	Expanded bool `json:"expanded,omitempty"`
	Selected bool `json:"selected,omitempty"`
	Invalid  bool `json:"invalid,omitempty"`
	Hidden   bool `json:"hidden,omitempty"`
}

type RoleNode struct {
	Role  string    `json:"role"`
	Name  string    `json:"name,omitempty"`
	Value string    `json:"value,omitempty"`
	Rect  Rect      `json:"rect"`
	Flags NodeFlags `json:"flags"`
}

// StructuralKey identifies a node for structural diffing: role and
// accessible name only.
func (n RoleNode) StructuralKey() string {
	return n.Role + "\x00" + n.Name
}

// StateKey identifies a node for state signatures. Unlike StructuralKey it
// includes the current value and state flags, so typing into a field or
// toggling a checkbox yields a different key. Geometry is never part of it.
func (n RoleNode) StateKey() string {
	var b strings.Builder
	b.WriteString(n.Role)
	b.WriteByte('|')
	b.WriteString(n.Name)
	b.WriteByte('|')
	b.WriteString(n.Value)
	for _, f := range []bool{n.Flags.Checked, n.Flags.Expanded, n.Flags.Selected, n.Flags.Disabled, n.Flags.Invalid} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatBool(f))
	}
	return b.String()
}

type RoleTreeSnapshot struct {
	URL     string     `json:"url"`
	Nodes   []RoleNode `json:"nodes"`
	TakenAt time.Time  `json:"taken_at"`
}

func (s *RoleTreeSnapshot) HasRole(roles ...string) bool {
	if s == nil {
		return false
	}
	for _, n := range s.Nodes {
		for _, r := range roles {
			if n.Role == r {
				return true
			}
		}
	}
	return false
}

// Summary counts nodes per role; it is what UIState metadata keeps instead
// of the full tree.
func (s *RoleTreeSnapshot) Summary() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for _, n := range s.Nodes {
		out[n.Role]++
	}
	return out
}

// DOMSignals are page facts the role tree cannot express.
type DOMSignals struct {
	// Forms maps a stable form key to whether it currently validates.
	Forms     map[string]bool `json:"forms,omitempty"`
	ToastHint bool            `json:"toast_hint,omitempty"`
	Busy      bool            `json:"busy,omitempty"`
}
