package exercise

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed prompts/exercise.tmpl
var defaultTemplate string

const systemPromptFormat = "You are an expert in creating %s as a foreign language learning material, specialised in TCF-style listening comprehension."

var languageNames = map[string]string{
	"fr": "French",
	"en": "English",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
}

// LanguageName maps an ISO 639-1 code to the name used in prompts.
func LanguageName(code string) string {
	if n, ok := languageNames[strings.ToLower(code)]; ok {
		return n
	}
	return code
}

type PromptData struct {
	Transcript   string
	Language     string
	LanguageName string
}

type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses a user supplied template; sprig functions are available.
func NewPrompt(text string) (*Prompt, error) {
	t, err := template.New("exercise").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompt{tmpl: t}, nil
}

func DefaultPrompt() *Prompt {
	p, err := NewPrompt(defaultTemplate)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Prompt) Render(data PromptData) (string, error) {
	if data.LanguageName == "" {
		data.LanguageName = LanguageName(data.Language)
	}
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

func SystemPrompt(language string) string {
	return fmt.Sprintf(systemPromptFormat, LanguageName(language))
}
