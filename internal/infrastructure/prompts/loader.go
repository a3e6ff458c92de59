package prompts

import (
	_ "embed"
)

//go:embed locate.txt
var LocatePrompt string

//go:embed classify.txt
var ClassifyPrompt string
