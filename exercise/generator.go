package exercise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mudler/xlog"

	"github.com/humblenginr/yt_listening_comp/failure"
)

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Request struct {
	System string
	Prompt string
	// JSON asks the model for a JSON object response.
	JSON bool
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Completer is the language-model collaborator.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Debug carries what is needed to diagnose a generation after the fact.
type Debug struct {
	Raw      string        `json:"raw,omitempty"`
	Cleaned  string        `json:"cleaned,omitempty"`
	Parsed   any           `json:"parsed,omitempty"`
	Problems []string      `json:"problems,omitempty"`
	Model    string        `json:"model,omitempty"`
	Usage    *Usage        `json:"usage,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Result is the tagged outcome of one generation. Exactly one of Content
// (Success) or Kind/Error is set.
type Result struct {
	Success bool         `json:"success"`
	Content *Exercise    `json:"content,omitempty"`
	Kind    failure.Kind `json:"kind,omitempty"`
	Error   string       `json:"error,omitempty"`
	Debug   Debug        `json:"debug_info"`
}

// Err converts a failed result into an error value, nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return failure.New(r.Kind, "generate exercise", errors.New(r.Error))
}

type Generator struct {
	LLM      Completer
	Prompt   *Prompt
	Language string
	// Timeout bounds the model call.
	Timeout time.Duration
}

// Generate builds an exercise from one segment transcript. It never returns
// an error: every failure is reported through the Result.
func (g *Generator) Generate(ctx context.Context, transcript string) Result {
	start := time.Now()
	res := g.generate(ctx, transcript)
	res.Debug.Elapsed = time.Since(start)
	if !res.Success {
		xlog.Warn("exercise generation failed", "kind", res.Kind, "error", res.Error)
	}
	return res
}

func (g *Generator) generate(ctx context.Context, transcript string) Result {
	if strings.TrimSpace(transcript) == "" {
		return failed(failure.KindInput, "transcript is empty", Debug{})
	}
	if g.LLM == nil {
		return failed(failure.KindUpstream, "no language model configured", Debug{})
	}

	prompt := g.Prompt
	if prompt == nil {
		prompt = DefaultPrompt()
	}
	text, err := prompt.Render(PromptData{Transcript: transcript, Language: g.Language})
	if err != nil {
		return failed(failure.KindInput, err.Error(), Debug{})
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	completion, err := g.LLM.Complete(ctx, Request{System: SystemPrompt(g.Language), Prompt: text, JSON: true})
	if err != nil {
		return failed(failure.KindUpstream, fmt.Sprintf("language model call failed: %v", err), Debug{})
	}

	debug := Debug{Raw: completion.Text, Model: completion.Model, Usage: &completion.Usage}
	debug.Cleaned = StripCodeFence(completion.Text)

	parsed, err := decodeJSON(debug.Cleaned)
	if err != nil {
		return failed(failure.KindParse, fmt.Sprintf("failed to parse model response as JSON: %v", err), debug)
	}
	debug.Parsed = parsed

	ex, err := Validate(parsed)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			debug.Problems = ve.Problems
		}
		return failed(failure.KindValidation, err.Error(), debug)
	}

	return Result{Success: true, Content: ex, Debug: debug}
}

func failed(kind failure.Kind, msg string, debug Debug) Result {
	return Result{Kind: kind, Error: msg, Debug: debug}
}

// StripCodeFence removes a surrounding ``` or ```json fence. Text that is
// not wrapped is returned trimmed and otherwise untouched.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// drop the info string, e.g. "json", but keep content on the fence line
	body := strings.TrimLeft(strings.TrimPrefix(s, "```"), fenceInfoChars)
	if i := strings.LastIndex(body, "```"); i >= 0 {
		body = body[:i]
	}
	return strings.TrimSpace(body)
}

const fenceInfoChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// decodeJSON keeps numbers as json.Number so 2 and 2.0 stay distinguishable,
// and rejects trailing content after the document.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected content after JSON document")
	}
	return v, nil
}

// MarshalExercise renders an exercise as compact JSON without HTML escaping.
func MarshalExercise(e *Exercise) (string, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
