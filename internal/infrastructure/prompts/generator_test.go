package prompts

import (
	"strings"
	"testing"

	"browser-observer/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLocatePrompt(t *testing.T) {
	prompt, err := GenerateLocatePrompt(LocatePrompt, LocatePromptData{
		Description: "searchbox[Search Wikipedia]",
		Action:      entity.ActionTypeText,
		Width:       1024,
		Height:      624,
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "1024x624 pixels")
	assert.Contains(t, prompt, "wants to type: searchbox[Search Wikipedia]")
	assert.Contains(t, prompt, `"found"`)
}

func TestGenerateLocatePrompt_DefaultsToClick(t *testing.T) {
	prompt, err := GenerateLocatePrompt(LocatePrompt, LocatePromptData{Description: "button[OK]"})
	require.NoError(t, err)
	assert.Contains(t, prompt, "wants to click: button[OK]")
}

func TestGenerateClassifyPrompt(t *testing.T) {
	valid := true

	tests := []struct {
		name    string
		data    ClassifyPromptData
		want    []string
		notWant []string
	}{
		{
			name: "all signals",
			data: ClassifyPromptData{
				Task:      "search python",
				URL:       "https://en.wikipedia.org/wiki/Python",
				HasModal:  true,
				FormValid: &valid,
			},
			want: []string{
				"The workflow being recorded: search python",
				"dialog open: true",
				"toast or notification visible: false",
				"now valid: true",
				`"critical" | "supporting" | "optional"`,
			},
		},
		{
			name:    "no task no form",
			data:    ClassifyPromptData{URL: "https://a.test/"},
			want:    []string{"Page: https://a.test/"},
			notWant: []string{"workflow being recorded", "now valid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := GenerateClassifyPrompt(ClassifyPrompt, tt.data)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, prompt, w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, prompt, w)
			}
		})
	}
}

func TestGenerateClassifyPrompt_CustomLevels(t *testing.T) {
	prompt, err := GenerateClassifyPrompt(ClassifyPrompt, ClassifyPromptData{
		URL:    "https://a.test/",
		Levels: []Level{{Name: entity.SignificanceCritical, Meaning: "keep"}},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, `- "critical": keep`)
	assert.NotContains(t, prompt, "supporting")
}

func TestRender_Errors(t *testing.T) {
	_, err := GenerateLocatePrompt("{{.Missing", LocatePromptData{})
	assert.ErrorContains(t, err, "parse locate prompt")

	_, err = GenerateLocatePrompt("{{.Nope}}", LocatePromptData{})
	assert.ErrorContains(t, err, "render locate prompt")
}

func TestEmbeddedPromptsLoaded(t *testing.T) {
	for name, p := range map[string]string{"locate": LocatePrompt, "classify": ClassifyPrompt} {
		assert.True(t, strings.Contains(p, "JSON"), "%s prompt must ask for JSON", name)
	}
}
