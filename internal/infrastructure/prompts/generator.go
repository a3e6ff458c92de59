package prompts

import (
	"bytes"
	"fmt"
	"text/template"

	"browser-observer/internal/domain/entity"
)

type LocatePromptData struct {
	Description string
	Action      entity.ActionType
	Width       int
	Height      int
}

type Level struct {
	Name    entity.Significance
	Meaning string
}

type ClassifyPromptData struct {
	Task      string
	URL       string
	HasModal  bool
	HasToast  bool
	FormValid *bool
	Levels    []Level
}

// DefaultLevels lists the significance labels in the order the model sees
// them.
func DefaultLevels() []Level {
	return []Level{
		{Name: entity.SignificanceCritical, Meaning: "a decision point or a result the workflow depends on"},
		{Name: entity.SignificanceSupporting, Meaning: "useful context between the key steps"},
		{Name: entity.SignificanceOptional, Meaning: "incidental, could be dropped without losing the story"},
	}
}

var funcs = template.FuncMap{
	"deref": func(b *bool) bool { return b != nil && *b },
}

func GenerateLocatePrompt(baseTemplate string, data LocatePromptData) (string, error) {
	if data.Action == "" {
		data.Action = entity.ActionClick
	}
	return render("locate", baseTemplate, data)
}

func GenerateClassifyPrompt(baseTemplate string, data ClassifyPromptData) (string, error) {
	if len(data.Levels) == 0 {
		data.Levels = DefaultLevels()
	}
	return render("classify", baseTemplate, data)
}

func render(name, baseTemplate string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(baseTemplate)
	if err != nil {
		return "", fmt.Errorf("parse %s prompt: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}
