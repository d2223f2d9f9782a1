package exercise_test

import (
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/humblenginr/yt_listening_comp/exercise"
)

func validDoc() map[string]any {
	return map[string]any{
		"dialogue":             []any{[]any{"A", "Bonjour"}, []any{"B", "Salut"}},
		"question":             "Q",
		"answers":              []any{"a", "b", "c", "d"},
		"correct_answer_index": 2,
		"topics":               []any{"greetings", "informal"},
		"difficulty_level":     "A2",
	}
}

func decode(s string) any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	Expect(dec.Decode(&v)).To(Succeed())
	return v
}

var _ = Describe("Validate", func() {
	It("accepts a well formed exercise", func() {
		ex, err := exercise.Validate(validDoc())
		Expect(err).ToNot(HaveOccurred())
		Expect(ex.Dialogue).To(Equal([]exercise.Turn{{Speaker: "A", Text: "Bonjour"}, {Speaker: "B", Text: "Salut"}}))
		Expect(ex.CorrectAnswerIndex).To(Equal(2))
		Expect(ex.CorrectAnswer()).To(Equal("c"))
		Expect(ex.DifficultyLevel).To(Equal(exercise.LevelA2))
		Expect(ex.DialogueText()).To(Equal("Bonjour Salut"))
	})

	It("accepts decoded JSON with optional speakers_info", func() {
		ex, err := exercise.Validate(decode(`{
			"dialogue": [["Homme", "On se voit demain ?"], ["Femme", "Oui, à midi."]],
			"question": "Quand se voient-ils ?",
			"answers": ["Ce soir", "Demain midi", "Lundi", "Jamais"],
			"correct_answer_index": 1,
			"topics": ["rendez-vous", "temps", "amis"],
			"difficulty_level": "A1",
			"speakers_info": ["un homme", "une femme"]
		}`))
		Expect(err).ToNot(HaveOccurred())
		Expect(ex.SpeakersInfo).To(Equal([]string{"un homme", "une femme"}))
		Expect(ex.CorrectAnswer()).To(Equal("Demain midi"))
	})

	DescribeTable("rejects contract violations",
		func(mutate func(map[string]any), problem string) {
			doc := validDoc()
			mutate(doc)
			ex, err := exercise.Validate(doc)
			Expect(ex).To(BeNil())
			var ve *exercise.ValidationError
			Expect(err).To(BeAssignableToTypeOf(ve))
			Expect(err.Error()).To(ContainSubstring(problem))
		},
		Entry("missing correct_answer_index", func(d map[string]any) { delete(d, "correct_answer_index") }, `missing required key "correct_answer_index"`),
		Entry("three answers", func(d map[string]any) { d["answers"] = []any{"a", "b", "c"} }, "exactly 4"),
		Entry("index 4", func(d map[string]any) { d["correct_answer_index"] = 4 }, "between 0 and 3"),
		Entry("index 5", func(d map[string]any) { d["correct_answer_index"] = 5 }, "between 0 and 3"),
		Entry("negative index", func(d map[string]any) { d["correct_answer_index"] = -1 }, "between 0 and 3"),
		Entry("non integer index", func(d map[string]any) { d["correct_answer_index"] = 1.5 }, "must be an integer"),
		Entry("string index", func(d map[string]any) { d["correct_answer_index"] = "1" }, "must be an integer"),
		Entry("three item turn", func(d map[string]any) {
			d["dialogue"] = []any{[]any{"A", "hi"}, []any{"B", "hi", "extra"}}
		}, "dialogue[1]"),
		Entry("non string turn", func(d map[string]any) { d["dialogue"] = []any{[]any{"A", 3}} }, "two strings"),
		Entry("dialogue not a list", func(d map[string]any) { d["dialogue"] = "A: hi" }, "dialogue must be a list"),
		Entry("question not a string", func(d map[string]any) { d["question"] = []any{"Q"} }, "question must be a string"),
		Entry("non string answer", func(d map[string]any) { d["answers"] = []any{"a", "b", "c", 4} }, "answers must be a list of strings"),
		Entry("one topic", func(d map[string]any) { d["topics"] = []any{"only"} }, "between 2 and 4"),
		Entry("five topics", func(d map[string]any) { d["topics"] = []any{"a", "b", "c", "d", "e"} }, "between 2 and 4"),
		Entry("unknown level", func(d map[string]any) { d["difficulty_level"] = "C1" }, "difficulty_level"),
		Entry("speakers_info not strings", func(d map[string]any) { d["speakers_info"] = []any{1, 2} }, "speakers_info"),
		Entry("speakers_info null", func(d map[string]any) { d["speakers_info"] = nil }, "speakers_info must be a list of strings"),
	)

	It("rejects a decimal literal index", func() {
		doc := decode(`{"dialogue": [], "question": "Q", "answers": ["a","b","c","d"],
			"correct_answer_index": 2.0, "topics": ["x","y"], "difficulty_level": "B1"}`)
		_, err := exercise.Validate(doc)
		Expect(err).To(MatchError(ContainSubstring("must be an integer")))
	})

	It("rejects documents that are not objects", func() {
		_, err := exercise.Validate([]any{validDoc()})
		Expect(err).To(MatchError(ContainSubstring("expected a JSON object, got list")))
	})

	It("lists every problem at once", func() {
		_, err := exercise.Validate(map[string]any{"question": 1})
		var ve *exercise.ValidationError
		Expect(err).To(BeAssignableToTypeOf(ve))
		ve = err.(*exercise.ValidationError)
		Expect(len(ve.Problems)).To(BeNumerically(">=", 6))
	})
})

var _ = Describe("Turn", func() {
	It("round-trips as a pair", func() {
		data, err := json.Marshal(exercise.Turn{Speaker: "A", Text: "Bonjour"})
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal(`["A","Bonjour"]`))

		var t exercise.Turn
		Expect(json.Unmarshal([]byte(`["B","Salut"]`), &t)).To(Succeed())
		Expect(t).To(Equal(exercise.Turn{Speaker: "B", Text: "Salut"}))
		Expect(json.Unmarshal([]byte(`["B","Salut","!"]`), &t)).ToNot(Succeed())
	})
})
