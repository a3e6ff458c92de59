package dedup

import (
	"fmt"
	"testing"

	"browser-observer/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(names ...string) []entity.RoleNode {
	out := make([]entity.RoleNode, len(names))
	for i, n := range names {
		out[i] = entity.RoleNode{Role: "link", Name: n, Rect: entity.Rect{Width: 10, Height: 10}}
	}
	return out
}

func TestCompute_IgnoresOrderAndGeometry(t *testing.T) {
	a := nodes("Home", "About", "Contact")
	b := nodes("Contact", "Home", "About")
	b[0].Rect = entity.Rect{X: 300, Y: 40, Width: 99, Height: 12}

	sa := Compute("https://app.test/", a, false, false)
	sb := Compute("https://app.test/", b, false, false)

	assert.Equal(t, sa.Hash, sb.Hash)
	assert.Len(t, sa.Hash, 64)
}

func TestCompute_Sensitivity(t *testing.T) {
	base := Compute("https://app.test/", nodes("Home"), false, false)

	typed := nodes("Home")
	typed[0].Value = "python"

	tests := []struct {
		name string
		sig  entity.StateSignature
	}{
		{"url", Compute("https://app.test/other", nodes("Home"), false, false)},
		{"node name", Compute("https://app.test/", nodes("Away"), false, false)},
		{"node value", Compute("https://app.test/", typed, false, false)},
		{"modal flag", Compute("https://app.test/", nodes("Home"), true, false)},
		{"toast flag", Compute("https://app.test/", nodes("Home"), false, true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base.Hash, tt.sig.Hash)
		})
	}
}

func TestCompute_CapsNodes(t *testing.T) {
	many := make([]string, entity.MaxRoleNodes+50)
	for i := range many {
		many[i] = fmt.Sprintf("item-%03d", i)
	}
	sig := Compute("https://app.test/", nodes(many...), false, false)
	assert.Len(t, sig.Identities, entity.MaxRoleNodes)
}

func TestSimilarity(t *testing.T) {
	a := Compute("https://app.test/", nodes("A", "B", "C", "D"), false, false)
	sameSet := Compute("https://app.test/", nodes("D", "C", "B", "A"), false, false)
	half := Compute("https://app.test/", nodes("A", "B", "E", "F"), false, false)
	otherURL := Compute("https://app.test/x", nodes("A", "B", "C", "D"), false, false)
	withModal := Compute("https://app.test/", nodes("A", "B", "C", "D"), true, false)

	assert.Equal(t, 1.0, Similarity(a, sameSet))
	assert.InDelta(t, 2.0/6.0, Similarity(a, half), 1e-9)
	assert.Equal(t, 0.0, Similarity(a, otherURL))
	// Same identities but a dialog opened: never considered a near-duplicate.
	assert.Equal(t, 0.5, Similarity(a, withModal))
}

func TestWindow_RejectsExactRepeat(t *testing.T) {
	w := NewWindow(DefaultWindowSize, DefaultThreshold)
	sig := Compute("https://app.test/", nodes("A"), false, false)

	require.True(t, w.ShouldRetain(sig))
	w.Push(sig)
	assert.False(t, w.ShouldRetain(sig))
}

func TestWindow_RejectsNearDuplicate(t *testing.T) {
	names := make([]string, 100)
	for i := range names {
		names[i] = fmt.Sprintf("row-%d", i)
	}
	w := NewWindow(DefaultWindowSize, 0.98)
	w.Push(Compute("https://app.test/", nodes(names...), false, false))

	// One node out of a hundred changed: 99/101 ≈ 0.980.
	changed := append([]string{}, names...)
	changed[0] = "row-x"
	assert.False(t, w.ShouldRetain(Compute("https://app.test/", nodes(changed...), false, false)))

	// Ten changed: well under threshold.
	for i := 0; i < 10; i++ {
		changed[i] = fmt.Sprintf("new-%d", i)
	}
	assert.True(t, w.ShouldRetain(Compute("https://app.test/", nodes(changed...), false, false)))
}

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(2, DefaultThreshold)
	first := Compute("https://app.test/1", nodes("A"), false, false)
	w.Push(first)
	w.Push(Compute("https://app.test/2", nodes("A"), false, false))
	w.Push(Compute("https://app.test/3", nodes("A"), false, false))

	assert.Equal(t, 2, w.Len())
	assert.True(t, w.ShouldRetain(first), "evicted signature is no longer a duplicate")
}

func TestNewWindow_Defaults(t *testing.T) {
	w := NewWindow(0, 0)
	assert.Equal(t, DefaultWindowSize, w.size)
	assert.Equal(t, DefaultThreshold, w.threshold)
}

func largePage(n int) []entity.RoleNode {
	out := make([]entity.RoleNode, 0, n+1)
	out = append(out, entity.RoleNode{Role: "searchbox", Name: "Search"})
	for i := 0; i < n; i++ {
		out = append(out, entity.RoleNode{Role: "link", Name: fmt.Sprintf("Article %d", i)})
	}
	return out
}

func TestWindow_RetainsTypedValueOnLargePage(t *testing.T) {
	for _, size := range []int{10, 120, entity.MaxRoleNodes - 1} {
		t.Run(fmt.Sprint(size), func(t *testing.T) {
			w := NewWindow(DefaultWindowSize, DefaultThreshold)
			before := largePage(size)
			w.Push(Compute("https://wiki.test/", before, false, false))

			typed := largePage(size)
			typed[0].Value = "Python"
			assert.True(t, w.ShouldRetain(Compute("https://wiki.test/", typed, false, false)))
		})
	}
}

func TestStateChanged(t *testing.T) {
	base := largePage(3)

	typed := largePage(3)
	typed[0].Value = "Python"

	checked := largePage(3)
	checked[2].Flags.Selected = true

	renamed := largePage(3)
	renamed[1].Name = "Renamed"

	added := append(largePage(3), entity.RoleNode{Role: "button", Name: "More"})

	tests := []struct {
		name  string
		nodes []entity.RoleNode
		want  bool
	}{
		{"same", largePage(3), false},
		{"typed value", typed, true},
		{"selected flag", checked, true},
		{"renamed node", renamed, false},
		{"added node", added, false},
	}
	a := Compute("https://wiki.test/", base, false, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Compute("https://wiki.test/", tt.nodes, false, false)
			assert.Equal(t, tt.want, StateChanged(a, b))
		})
	}
}

func TestSimilarity_ValueChangeHalves(t *testing.T) {
	a := Compute("https://wiki.test/", largePage(150), false, false)
	typed := largePage(150)
	typed[0].Value = "Python"

	assert.Equal(t, 0.5, Similarity(a, Compute("https://wiki.test/", typed, false, false)))
}
