package resolver

import "strings"

var smartToASCII = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"‛", "'",
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"–", "-",
	"—", "-",
	"‑", "-",
	" ", " ",
)

// Normalize folds typography the planner and the page often disagree on:
// smart quotes, dash variants, non-breaking and repeated whitespace, case.
func Normalize(s string) string {
	s = smartToASCII.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ToLower(s)
}
