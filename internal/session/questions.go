// Package session implements the live interview session: question
// sequencing, answer capture, metrics aggregation, and the state machine
// that coordinates camera, microphone, speech, and timer events.
package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
)

// Category classifies a question.
type Category string

const (
	CategoryTechnical  Category = "technical"
	CategoryHR         Category = "hr"
	CategoryBehavioral Category = "behavioral"
	CategoryGD         Category = "gd"
)

// Question is one prompt to voice, immutable once derived from the analysis
// payload.
type Question struct {
	Category Category
	Topic    string
	Text     string
	Expected string
}

// Candidate identifies who the session belongs to.
type Candidate struct {
	Email string
	Name  string
}

// Analysis is the parsed resume-analysis payload: the candidate's identity
// plus the question material for both modes.
type Analysis struct {
	Candidate Candidate
	Interview []Question
	GD        []Question
}

type analysisEnvelope struct {
	Data struct {
		Extracted struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"extracted_information"`
		InterviewQuestions struct {
			Technical  []json.RawMessage `json:"technical"`
			HR         []json.RawMessage `json:"hr"`
			Behavioral []json.RawMessage `json:"behavioral"`
		} `json:"interview_questions"`
		GroupDiscussion json.RawMessage `json:"group_discussion"`
	} `json:"data"`
}

// ParseAnalysis decodes the stored resume-analysis payload. The interview
// sequence concatenates technical, hr, and behavioral questions in that
// order; group discussion yields at most one topic.
func ParseAnalysis(raw []byte) (*Analysis, error) {
	var env analysisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "malformed analysis payload")
	}

	a := &Analysis{
		Candidate: Candidate{
			Email: env.Data.Extracted.Email,
			Name:  env.Data.Extracted.Name,
		},
	}

	for _, item := range env.Data.InterviewQuestions.Technical {
		a.Interview = append(a.Interview, normalizeQuestion(CategoryTechnical, item))
	}
	for _, item := range env.Data.InterviewQuestions.HR {
		a.Interview = append(a.Interview, normalizeQuestion(CategoryHR, item))
	}
	for _, item := range env.Data.InterviewQuestions.Behavioral {
		a.Interview = append(a.Interview, normalizeQuestion(CategoryBehavioral, item))
	}

	if gd := env.Data.GroupDiscussion; len(gd) > 0 && string(gd) != "null" {
		q := normalizeQuestion(CategoryGD, gd)
		if q.Text != "" {
			a.GD = []Question{q}
		}
	}

	return a, nil
}

// Questions returns the sequence for a mode, failing when the payload has no
// material for it.
func (a *Analysis) Questions(mode scoring.Mode) ([]Question, error) {
	var qs []Question
	switch mode {
	case scoring.ModeInterview:
		qs = a.Interview
	case scoring.ModeGD:
		qs = a.GD
	default:
		return nil, apperr.Newf(apperr.Internal, "unknown session mode %q", mode)
	}
	if len(qs) == 0 {
		return nil, apperr.Newf(apperr.NoQuestions, "no %s questions found", mode)
	}
	return qs, nil
}

// normalizeQuestion accepts the loose shapes the analysis service emits:
// plain strings, objects with several possible text keys, or other scalars.
func normalizeQuestion(category Category, raw json.RawMessage) Question {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return Question{Category: category, Text: s, Expected: s}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		text := firstString(obj, "question", "text", "prompt", "title")
		if text == "" {
			text = string(raw)
		}
		expected := firstString(obj, "expected_answer", "expected")
		if expected == "" {
			expected = text
		}
		return Question{
			Category: category,
			Topic:    firstString(obj, "topic", "subtopic"),
			Text:     text,
			Expected: expected,
		}
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil && v != nil {
		text := fmt.Sprint(v)
		return Question{Category: category, Text: text, Expected: text}
	}
	return Question{Category: category}
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		var s string
		if str, ok := v.(string); ok {
			s = str
		} else {
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
