// Package scoring holds the submission contract with the external scoring
// service and the HTTP client that speaks it.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
	"github.com/kalkeesh/AI-mock-interviews/internal/trace"
)

// Mode is the session mode a result belongs to.
type Mode string

const (
	ModeInterview Mode = "interview"
	ModeGD        Mode = "gd"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeInterview || m == ModeGD }

// Answer is one asked question with the candidate's captured response.
type Answer struct {
	Question        string    `json:"question"`
	Category        string    `json:"category,omitempty"`
	ExpectedAnswer  string    `json:"expected_answer,omitempty"`
	AnswerText      string    `json:"answer_text"`
	AskedAt         time.Time `json:"asked_at"`
	AnsweredAt      time.Time `json:"answered_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// FaceMetrics is the behavioral summary computed locally before submission.
type FaceMetrics struct {
	ConfidenceLevel  string  `json:"confidence_level"`
	NervousnessLevel string  `json:"nervousness_level"`
	ConfidenceScore  float64 `json:"confidence_score"`
	NervousnessScore float64 `json:"nervousness_score"`
	FaceVisibleRatio float64 `json:"face_visible_ratio"`
	CenteredRatio    float64 `json:"centered_ratio"`
	MovementScore    float64 `json:"movement_score"`
}

// SessionResult is the complete payload for one finished mode-run. Immutable
// once submitted.
type SessionResult struct {
	SessionMode    Mode        `json:"session_mode"`
	CandidateEmail string      `json:"candidate_email"`
	CandidateName  string      `json:"candidate_name"`
	Answers        []Answer    `json:"answers"`
	FaceMetrics    FaceMetrics `json:"face_metrics"`
}

// Summary is the scoring service's evaluation of a submitted session.
type Summary struct {
	OverallResult      string    `json:"overall_result"`
	AnswerQuality      string    `json:"answer_quality"`
	AverageAnswerScore float64   `json:"average_answer_score"`
	ConfidenceLevel    string    `json:"confidence_level"`
	NervousnessLevel   string    `json:"nervousness_level"`
	CompletionRate     float64   `json:"completion_rate"`
	QuestionScores     []float64 `json:"question_scores"`
}

// Outcome is the service response for a stored session.
type Outcome struct {
	Message   string  `json:"message"`
	SessionID string  `json:"session_id"`
	Summary   Summary `json:"summary"`
}

// Client submits finished sessions for scoring. Submission is a single shot
// with no automatic retry; a failed submit leaves the session unsaved and the
// caller decides what to do.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a scoring client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Complete posts a finished session and returns the service's evaluation.
// Non-2xx responses surface the service's detail message verbatim.
func (c *Client) Complete(ctx context.Context, result *SessionResult) (*Outcome, error) {
	log := trace.Logger(ctx)

	body, err := json.Marshal(result)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "could not encode session result")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/interview/session/complete", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.SubmissionFailed, "could not build submission request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.SubmissionFailed, "scoring service unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.SubmissionFailed, "could not read scoring response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn("submission rejected", "status", resp.StatusCode)
		return nil, apperr.New(apperr.SubmissionFailed, errorDetail(resp.StatusCode, data))
	}

	var outcome Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, apperr.Wrap(err, apperr.SubmissionFailed, "malformed scoring response")
	}
	log.Info("session scored", "session_id", outcome.SessionID, "overall", outcome.Summary.OverallResult)
	return &outcome, nil
}

// errorDetail extracts the service's detail field when present, otherwise a
// generic status message.
func errorDetail(status int, body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("scoring service returned status %d", status)
}
