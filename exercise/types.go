package exercise

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
)

var levels = map[Level]bool{LevelA1: true, LevelA2: true, LevelB1: true, LevelB2: true}

func (l Level) Valid() bool { return levels[l] }

// Turn is one line of dialogue. On the wire it is a [speaker, text] pair.
type Turn struct {
	Speaker string
	Text    string
}

func (t Turn) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Speaker, t.Text})
}

func (t *Turn) UnmarshalJSON(b []byte) error {
	var pair []string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("dialogue turn must be a [speaker, text] pair, got %d items", len(pair))
	}
	t.Speaker, t.Text = pair[0], pair[1]
	return nil
}

// Exercise is a validated listening-comprehension unit. Only Validate
// builds one from model output.
type Exercise struct {
	Dialogue           []Turn   `json:"dialogue"`
	Question           string   `json:"question"`
	Answers            []string `json:"answers"`
	CorrectAnswerIndex int      `json:"correct_answer_index"`
	Topics             []string `json:"topics"`
	DifficultyLevel    Level    `json:"difficulty_level"`
	SpeakersInfo       []string `json:"speakers_info,omitempty"`
}

// DialogueText joins the utterances, it is the text indexed for topic search.
func (e *Exercise) DialogueText() string {
	parts := make([]string, 0, len(e.Dialogue))
	for _, t := range e.Dialogue {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

func (e *Exercise) CorrectAnswer() string {
	if e.CorrectAnswerIndex < 0 || e.CorrectAnswerIndex >= len(e.Answers) {
		return ""
	}
	return e.Answers[e.CorrectAnswerIndex]
}
