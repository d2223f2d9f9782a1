package exercise

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

const (
	answerCount = 4
	minTopics   = 2
	maxTopics   = 4
)

var requiredKeys = []string{
	"dialogue", "question", "answers", "correct_answer_index", "topics", "difficulty_level",
}

// ValidationError lists every rule the document broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid exercise: " + strings.Join(e.Problems, "; ")
}

// Validate checks a decoded model response against the exercise contract
// and builds the Exercise. doc is usually a map[string]any produced by a
// json.Decoder with UseNumber; integral float64 values are accepted too.
func Validate(doc any) (*Exercise, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("expected a JSON object, got %s", typeName(doc))}}
	}

	var (
		problems []string
		ex       Exercise
	)
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for _, k := range requiredKeys {
		if _, ok := obj[k]; !ok {
			fail("missing required key %q", k)
		}
	}

	if v, ok := obj["dialogue"]; ok {
		turns, ok := toList(v)
		if !ok {
			fail("dialogue must be a list, got %s", typeName(v))
		}
		for i, raw := range turns {
			pair, ok := toList(raw)
			if !ok || len(pair) != 2 {
				fail("dialogue[%d] must be a [speaker, text] pair", i)
				continue
			}
			speaker, ok1 := pair[0].(string)
			text, ok2 := pair[1].(string)
			if !ok1 || !ok2 {
				fail("dialogue[%d] must contain two strings", i)
				continue
			}
			ex.Dialogue = append(ex.Dialogue, Turn{Speaker: speaker, Text: text})
		}
	}

	if v, ok := obj["question"]; ok {
		q, ok := v.(string)
		if !ok {
			fail("question must be a string, got %s", typeName(v))
		}
		ex.Question = q
	}

	if v, ok := obj["answers"]; ok {
		answers, ok := toStrings(v)
		switch {
		case !ok:
			fail("answers must be a list of strings")
		case len(answers) != answerCount:
			fail("answers must have exactly %d items, got %d", answerCount, len(answers))
		}
		ex.Answers = answers
	}

	if v, ok := obj["correct_answer_index"]; ok {
		idx, ok := toInt(v)
		switch {
		case !ok:
			fail("correct_answer_index must be an integer, got %s", typeName(v))
		case idx < 0 || idx >= answerCount:
			fail("correct_answer_index must be between 0 and %d, got %d", answerCount-1, idx)
		}
		ex.CorrectAnswerIndex = idx
	}

	if v, ok := obj["topics"]; ok {
		topics, ok := toStrings(v)
		switch {
		case !ok:
			fail("topics must be a list of strings")
		case len(topics) < minTopics || len(topics) > maxTopics:
			fail("topics must have between %d and %d items, got %d", minTopics, maxTopics, len(topics))
		}
		ex.Topics = topics
	}

	if v, ok := obj["difficulty_level"]; ok {
		s, _ := v.(string)
		if !Level(s).Valid() {
			fail("difficulty_level must be one of A1, A2, B1, B2, got %v", v)
		}
		ex.DifficultyLevel = Level(s)
	}

	if v, ok := obj["speakers_info"]; ok {
		info, ok := toStrings(v)
		if !ok {
			fail("speakers_info must be a list of strings")
		}
		ex.SpeakersInfo = info
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &ex, nil
}

func toList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toStrings(v any) ([]string, bool) {
	l, ok := toList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(l))
	for _, e := range l {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, int, int64:
		return "number"
	case map[string]any:
		return "object"
	}
	if _, ok := toList(v); ok {
		return "list"
	}
	return fmt.Sprintf("%T", v)
}
