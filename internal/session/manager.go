package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kalkeesh/AI-mock-interviews/internal/apperr"
	"github.com/kalkeesh/AI-mock-interviews/internal/metrics"
	"github.com/kalkeesh/AI-mock-interviews/internal/presence"
	"github.com/kalkeesh/AI-mock-interviews/internal/scoring"
	"github.com/kalkeesh/AI-mock-interviews/internal/speech"
	"github.com/kalkeesh/AI-mock-interviews/internal/trace"
)

// State names the orchestrator's lifecycle phases.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StateSaving     State = "saving"
	StateModePrompt State = "mode_prompt"
	StateFinished   State = "finished"
)

// Camera is the device acquirer surface the orchestrator drives.
type Camera interface {
	Acquire(ctx context.Context) (string, error)
	Stop()
}

// Microphone is best-effort audio capture.
type Microphone interface {
	Start(ctx context.Context) error
	Stop()
}

// Analyzer is the presence sampling loop.
type Analyzer interface {
	Start(sink func(presence.Sample))
	Stop()
}

// Speech is the voice channel: recognition in, synthesis out.
type Speech interface {
	Supported() bool
	StartListening(ctx context.Context) error
	StopListening()
	Listening() bool
	Transcript() string
	ResetTranscript()
	Speak(ctx context.Context, text string) error
	StopSpeaking()
}

// Scorer submits a finished session for evaluation.
type Scorer interface {
	Complete(ctx context.Context, result *scoring.SessionResult) (*scoring.Outcome, error)
}

// Store persists the analysis payload, per-mode results, and preferences.
type Store interface {
	Analysis() ([]byte, error)
	SaveResult(mode scoring.Mode, result *scoring.SessionResult, outcome *scoring.Outcome) error
	Results() (map[scoring.Mode]*scoring.Outcome, error)
	SetPreference(key, value string) error
}

// Status is an immutable snapshot of the session, safe to serialize.
type Status struct {
	State           State                             `json:"state"`
	Mode            scoring.Mode                      `json:"mode"`
	QuestionIndex   int                               `json:"question_index"`
	QuestionCount   int                               `json:"question_count"`
	QuestionText    string                            `json:"question_text,omitempty"`
	QuestionTopic   string                            `json:"question_topic,omitempty"`
	Transcript      string                            `json:"transcript"`
	RemainingSecs   int                               `json:"remaining_seconds"`
	CameraLabel     string                            `json:"camera_label,omitempty"`
	Listening       bool                              `json:"listening"`
	SpeechSupported bool                              `json:"speech_supported"`
	StatusText      string                            `json:"status_text,omitempty"`
	Error           string                            `json:"error,omitempty"`
	Results         map[scoring.Mode]*scoring.Outcome `json:"results,omitempty"`
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Camera   Camera
	Mic      Microphone
	Analyzer Analyzer
	Speech   Speech
	Scorer   Scorer
	Store    Store
	Metrics  *metrics.Metrics

	// FallbackEmail is used when the analysis payload carries no candidate email.
	FallbackEmail string

	// DefaultMinutes is the timer used when a start request omits one. Zero means 7.
	DefaultMinutes int

	// TimerTick shrinks one countdown second for tests. Zero means 1s.
	TimerTick time.Duration
}

// Manager is the session orchestrator. All mutable state is owned by the
// Run loop; external events and commands arrive as messages through one
// mailbox, so handlers apply atomically and never race each other.
type Manager struct {
	deps    Deps
	mailbox chan message
	done    chan struct{}
	events  chan Status

	// Loop-owned. Never touched outside the Run goroutine.
	runCtx     context.Context
	state      State
	mode       scoring.Mode
	candidate  Candidate
	questions  []Question
	index      int
	answers    []scoring.Answer
	answered   []bool
	askedAt    map[int]time.Time
	acc        *Accumulator
	countdown  *Countdown
	remaining  int
	minutes    int
	forced     bool
	startedAt  time.Time
	cameraLbl  string
	statusText string
	errText    string
	results    map[scoring.Mode]*scoring.Outcome

	snapMu   sync.RWMutex
	snapshot Status
}

// NewManager creates the orchestrator. Call Run to start processing.
func NewManager(deps Deps) *Manager {
	m := &Manager{
		deps:    deps,
		mailbox: make(chan message, 64),
		done:    make(chan struct{}),
		events:  make(chan Status, 32),
		state:   StateNotStarted,
		acc:     NewAccumulator(),
		askedAt: make(map[int]time.Time),
		results: make(map[scoring.Mode]*scoring.Outcome),
	}
	if stored, err := deps.Store.Results(); err == nil {
		for mode, outcome := range stored {
			m.results[mode] = outcome
		}
	}
	m.publish()
	return m
}

// Events streams status snapshots after every state change. Slow consumers
// miss intermediate snapshots, never the mailbox.
func (m *Manager) Events() <-chan Status { return m.events }

// Status returns the latest snapshot.
func (m *Manager) Status() Status {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snapshot
}

// Mailbox messages.
type message interface{}

type presenceMsg struct{ sample presence.Sample }
type tickMsg struct{ remaining int }
type expiredMsg struct{}
type speechMsg struct{ event speech.Event }
type acquiredMsg struct {
	label string
	micOK bool
}
type acquireFailedMsg struct{ err error }
type submittedMsg struct {
	mode    scoring.Mode
	result  *scoring.SessionResult
	outcome *scoring.Outcome
	err     error
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdAdvance
	cmdSkip
	cmdListen
	cmdStopListen
	cmdRepeat
)

func (k cmdKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdAdvance:
		return "advance"
	case cmdSkip:
		return "skip"
	case cmdListen:
		return "listen"
	case cmdStopListen:
		return "stop_listen"
	case cmdRepeat:
		return "repeat"
	}
	return "unknown"
}

type cmdMsg struct {
	kind    cmdKind
	mode    scoring.Mode
	minutes int
	ctx     context.Context
	reply   chan error
}

// Run processes the mailbox until ctx is cancelled, then tears down any
// active hardware.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	m.runCtx = ctx
	for {
		select {
		case <-ctx.Done():
			m.teardown()
			return
		case msg := <-m.mailbox:
			m.handle(ctx, msg)
			m.publish()
		}
	}
}

func (m *Manager) post(msg message) {
	select {
	case m.mailbox <- msg:
	case <-m.done:
	}
}

func (m *Manager) command(ctx context.Context, msg cmdMsg) error {
	msg.ctx = ctx
	msg.reply = make(chan error, 1)
	select {
	case m.mailbox <- msg:
	case <-m.done:
		return apperr.New(apperr.Internal, "session loop is not running")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-msg.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start begins a session in the given mode. It validates and kicks off
// asynchronous camera acquisition; progress is visible through Status.
func (m *Manager) Start(ctx context.Context, mode scoring.Mode, minutes int) error {
	return m.command(ctx, cmdMsg{kind: cmdStart, mode: mode, minutes: minutes})
}

// Advance finalizes the current answer and moves to the next question, or
// into Saving on the last one.
func (m *Manager) Advance(ctx context.Context) error {
	return m.command(ctx, cmdMsg{kind: cmdAdvance})
}

// Skip leaves the mode-transition prompt for the finished state.
func (m *Manager) Skip(ctx context.Context) error {
	return m.command(ctx, cmdMsg{kind: cmdSkip})
}

// StartListening begins speech capture for the current answer.
func (m *Manager) StartListening(ctx context.Context) error {
	return m.command(ctx, cmdMsg{kind: cmdListen})
}

// StopListening pauses speech capture; the transcript is kept.
func (m *Manager) StopListening(ctx context.Context) error {
	return m.command(ctx, cmdMsg{kind: cmdStopListen})
}

// Repeat voices the current question again.
func (m *Manager) Repeat(ctx context.Context) error {
	return m.command(ctx, cmdMsg{kind: cmdRepeat})
}

// HandleSpeechEvent feeds channel notifications into the mailbox. Wired as
// the speech channel's notify callback.
func (m *Manager) HandleSpeechEvent(e speech.Event) {
	m.post(speechMsg{event: e})
}

func (m *Manager) handle(ctx context.Context, msg message) {
	switch msg := msg.(type) {
	case cmdMsg:
		msg.reply <- m.handleCommand(msg)
	case presenceMsg:
		m.handlePresence(msg.sample)
	case tickMsg:
		m.remaining = msg.remaining
	case expiredMsg:
		m.handleExpired(ctx)
	case speechMsg:
		m.handleSpeech(msg.event)
	case acquiredMsg:
		m.handleAcquired(ctx, msg)
	case acquireFailedMsg:
		m.handleAcquireFailed(msg.err)
	case submittedMsg:
		m.handleSubmitted(msg)
	}
}

func (m *Manager) handleCommand(msg cmdMsg) error {
	// Commands outlive their HTTP request: the handler replies as soon as
	// the command lands and net/http cancels r.Context() right after.
	// Everything a command kicks off runs on the loop's context, keeping
	// only the trace identifiers from the request.
	ctx, span := trace.StartSpan(m.bgContext(msg.ctx), "cmd_"+msg.kind.String())
	defer span.End()
	span.SetAttr("state", string(m.state))

	switch msg.kind {
	case cmdStart:
		return m.handleStart(ctx, msg.mode, msg.minutes)
	case cmdAdvance:
		return m.handleAdvance(ctx)
	case cmdSkip:
		return m.handleSkip()
	case cmdListen:
		return m.handleListen(ctx)
	case cmdStopListen:
		return m.handleStopListen()
	case cmdRepeat:
		return m.handleRepeat(ctx)
	}
	return apperr.New(apperr.Internal, "unknown command")
}

// bgContext rebases a request-scoped context onto the run loop's lifetime so
// camera probes, playback, listening, and submission are not cancelled when
// the triggering request ends.
func (m *Manager) bgContext(reqCtx context.Context) context.Context {
	ctx := m.runCtx
	if tc, ok := trace.FromContext(reqCtx); ok {
		ctx = trace.WithContext(ctx, tc)
	}
	return ctx
}

func (m *Manager) handleStart(ctx context.Context, mode scoring.Mode, minutes int) error {
	if m.state != StateNotStarted && m.state != StateModePrompt && m.state != StateFinished {
		return apperr.New(apperr.InvalidState, "a session is already in progress")
	}
	if !mode.Valid() {
		return apperr.Newf(apperr.InvalidState, "unknown session mode %q", mode)
	}
	if minutes == 0 {
		minutes = m.deps.DefaultMinutes
	}
	if minutes == 0 {
		minutes = 7
	}
	if !ValidMinutes(minutes) {
		return apperr.Newf(apperr.InvalidState, "timer must be one of %v minutes", AllowedMinutes)
	}

	raw, err := m.deps.Store.Analysis()
	if err != nil {
		return apperr.Wrap(err, apperr.NoQuestions, "no analysis payload stored")
	}
	analysis, err := ParseAnalysis(raw)
	if err != nil {
		return err
	}
	questions, err := analysis.Questions(mode)
	if err != nil {
		return err
	}

	// Full reset for the new mode-run. Stored results from a previously
	// completed mode survive.
	m.mode = mode
	m.minutes = minutes
	m.candidate = analysis.Candidate
	if m.candidate.Email == "" {
		m.candidate.Email = m.deps.FallbackEmail
	}
	m.questions = questions
	m.index = 0
	m.answers = make([]scoring.Answer, len(questions))
	m.answered = make([]bool, len(questions))
	m.askedAt = make(map[int]time.Time)
	m.acc.Reset()
	m.forced = false
	m.remaining = minutes * 60
	m.cameraLbl = ""
	m.errText = ""
	m.deps.Speech.ResetTranscript()

	m.state = StateStarting
	m.statusText = "Requesting camera access..."

	// Remember the operator's last choice for the next run. Best-effort.
	log := trace.Logger(ctx)
	if err := m.deps.Store.SetPreference("session_mode", string(mode)); err != nil {
		log.Warn("could not persist mode preference", "error", err)
	}
	if err := m.deps.Store.SetPreference("timer_minutes", strconv.Itoa(minutes)); err != nil {
		log.Warn("could not persist timer preference", "error", err)
	}

	go m.acquireDevices(ctx)
	return nil
}

// acquireDevices runs off-loop: camera is mandatory, microphone best-effort.
func (m *Manager) acquireDevices(ctx context.Context) {
	log := trace.Logger(ctx)

	label, err := m.deps.Camera.Acquire(ctx)
	if err != nil {
		m.post(acquireFailedMsg{err: err})
		return
	}

	micOK := true
	if micErr := m.deps.Mic.Start(ctx); micErr != nil {
		micOK = false
		log.Warn("microphone unavailable, voice answers disabled", "error", micErr)
	}

	m.post(acquiredMsg{label: label, micOK: micOK})
}

func (m *Manager) handleAcquired(ctx context.Context, msg acquiredMsg) {
	if m.state != StateStarting {
		// Aborted while acquiring; release whatever was just opened.
		m.deps.Camera.Stop()
		m.deps.Mic.Stop()
		return
	}

	m.cameraLbl = msg.label
	m.startedAt = time.Now()
	m.statusText = "Session started."
	if !msg.micOK {
		m.statusText = "Session started. Microphone unavailable; answers can be typed."
	}

	m.deps.Analyzer.Start(func(s presence.Sample) {
		m.post(presenceMsg{sample: s})
	})

	tick := m.deps.TimerTick
	if tick == 0 {
		tick = time.Second
	}
	m.countdown = NewCountdown(m.minutes*60, tick,
		func(remaining int) { m.post(tickMsg{remaining: remaining}) },
		func() { m.post(expiredMsg{}) },
	)
	m.countdown.Start()

	m.state = StateActive
	m.deps.Metrics.SessionsStarted.WithLabelValues(string(m.mode)).Inc()
	m.enterQuestion(ctx, 0)
}

func (m *Manager) handleAcquireFailed(err error) {
	if m.state != StateStarting {
		return
	}
	// Camera is mandatory: without it the session never starts.
	m.state = StateNotStarted
	m.statusText = "Webcam unavailable. Check camera permission."
	m.errText = err.Error()
}

// enterQuestion voices question i and records when it was first asked.
func (m *Manager) enterQuestion(ctx context.Context, i int) {
	m.index = i
	if _, ok := m.askedAt[i]; !ok {
		m.askedAt[i] = time.Now()
	}
	m.statusText = "Question voiced. Start listening to answer."

	text := m.questions[i].Text
	go func() {
		if err := m.deps.Speech.Speak(ctx, text); err != nil {
			trace.Logger(ctx).Debug("question playback failed", "error", err)
		}
	}()
}

func (m *Manager) handleAdvance(ctx context.Context) error {
	if m.state != StateActive {
		return apperr.New(apperr.InvalidState, "no active question to save")
	}

	m.finalizeCurrent(time.Now())
	m.deps.Speech.StopListening()
	m.deps.Speech.ResetTranscript()

	if m.index >= len(m.questions)-1 {
		m.beginSaving(ctx)
		return nil
	}
	m.enterQuestion(ctx, m.index+1)
	return nil
}

// finalizeCurrent snapshots the transcript into the answer for the current
// index. Revisits overwrite; the accumulator swaps the old word counts out.
func (m *Manager) finalizeCurrent(now time.Time) {
	i := m.index
	q := m.questions[i]

	answerText := strings.TrimSpace(m.deps.Speech.Transcript())
	askedAt, ok := m.askedAt[i]
	if !ok {
		askedAt = now
	}
	duration := round2(now.Sub(askedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	m.acc.CountAnswer(i, answerText)
	m.answers[i] = scoring.Answer{
		Question:        q.Text,
		Category:        string(q.Category),
		ExpectedAnswer:  q.Expected,
		AnswerText:      answerText,
		AskedAt:         askedAt.UTC(),
		AnsweredAt:      now.UTC(),
		DurationSeconds: duration,
	}
	m.answered[i] = true
}

func (m *Manager) handleExpired(ctx context.Context) {
	if m.state != StateActive || m.forced {
		return
	}
	m.forced = true
	m.deps.Metrics.ForcedSubmissions.Inc()

	// The in-progress answer keeps whatever transcript exists; questions
	// never reached are recorded as unanswered.
	now := time.Now()
	m.finalizeCurrent(now)
	for i := range m.questions {
		if m.answered[i] {
			continue
		}
		q := m.questions[i]
		askedAt, ok := m.askedAt[i]
		if !ok {
			askedAt = now
		}
		m.answers[i] = scoring.Answer{
			Question:       q.Text,
			Category:       string(q.Category),
			ExpectedAnswer: q.Expected,
			AskedAt:        askedAt.UTC(),
			AnsweredAt:     now.UTC(),
		}
		m.answered[i] = true
	}

	m.beginSaving(ctx)
	m.statusText = "Time is up. Submitting your session..."
}

// beginSaving tears down every event source synchronously, then reads the
// accumulator. Ordering matters: a live analyzer tick arriving after the
// metrics snapshot would skew the ratios.
func (m *Manager) beginSaving(ctx context.Context) {
	m.state = StateSaving
	m.statusText = "Saving your session..."

	m.deps.Speech.StopSpeaking()
	m.deps.Speech.StopListening()
	m.deps.Camera.Stop()
	m.deps.Mic.Stop()
	if m.countdown != nil {
		m.countdown.Stop()
	}
	m.deps.Analyzer.Stop()
	m.drainPresence()

	result := &scoring.SessionResult{
		SessionMode:    m.mode,
		CandidateEmail: m.candidate.Email,
		CandidateName:  m.candidate.Name,
		Answers:        append([]scoring.Answer{}, m.answers...),
		FaceMetrics:    m.acc.Aggregate(m.answers),
	}
	if !m.startedAt.IsZero() {
		m.deps.Metrics.SessionDuration.Observe(time.Since(m.startedAt).Seconds())
	}

	mode := m.mode
	go func() {
		outcome, err := m.deps.Scorer.Complete(ctx, result)
		m.post(submittedMsg{mode: mode, result: result, outcome: outcome, err: err})
	}()
}

// drainPresence discards analyzer ticks already queued behind the teardown
// so they cannot land after the aggregate is computed.
func (m *Manager) drainPresence() {
	for {
		select {
		case msg := <-m.mailbox:
			if _, ok := msg.(presenceMsg); ok {
				continue
			}
			m.handleNonPresence(msg)
		default:
			return
		}
	}
}

// handleNonPresence requeues or answers messages seen while draining.
func (m *Manager) handleNonPresence(msg message) {
	if cmd, ok := msg.(cmdMsg); ok {
		cmd.reply <- apperr.New(apperr.InvalidState, "session is being saved")
		return
	}
	// Ticks and speech events are harmless once Saving; drop them.
}

func (m *Manager) handleSubmitted(msg submittedMsg) {
	if m.state != StateSaving {
		return
	}

	if msg.err != nil {
		m.deps.Metrics.SubmissionFailures.Inc()
		// No automatic retry. The session is torn down, the failure is
		// shown, and the candidate decides whether to run again.
		m.state = StateNotStarted
		m.statusText = ""
		m.errText = msg.err.Error()
		return
	}

	if err := m.deps.Store.SaveResult(msg.mode, msg.result, msg.outcome); err != nil {
		trace.Logger(context.Background()).Warn("could not persist result", "mode", msg.mode, "error", err)
	}
	m.results[msg.mode] = msg.outcome
	m.deps.Metrics.SessionsCompleted.WithLabelValues(string(msg.mode)).Inc()

	m.state = StateModePrompt
	if msg.mode == scoring.ModeInterview {
		m.statusText = "Interview saved. Continue with a group discussion or view results."
	} else {
		m.statusText = "Group discussion saved. Continue with an interview or view results."
	}
}

func (m *Manager) handleSkip() error {
	if m.state != StateModePrompt {
		return apperr.New(apperr.InvalidState, "nothing to skip")
	}
	m.state = StateFinished
	m.statusText = "Session complete. Results are ready."
	return nil
}

func (m *Manager) handleListen(ctx context.Context) error {
	if m.state != StateActive {
		return apperr.New(apperr.InvalidState, "no active question to answer")
	}
	if err := m.deps.Speech.StartListening(ctx); err != nil {
		if apperr.IsCode(err, apperr.RecognitionUnsupported) {
			m.statusText = "Speech recognition not supported here. Type your answer instead."
		}
		return err
	}
	m.statusText = "Listening and converting speech to text..."
	return nil
}

func (m *Manager) handleStopListen() error {
	m.deps.Speech.StopListening()
	if m.state == StateActive {
		m.statusText = "Paused listening."
	}
	return nil
}

func (m *Manager) handleRepeat(ctx context.Context) error {
	if m.state != StateActive {
		return apperr.New(apperr.InvalidState, "no active question to repeat")
	}
	text := m.questions[m.index].Text
	go func() {
		if err := m.deps.Speech.Speak(ctx, text); err != nil {
			trace.Logger(ctx).Debug("question playback failed", "error", err)
		}
	}()
	return nil
}

func (m *Manager) handlePresence(s presence.Sample) {
	if m.state != StateActive {
		return
	}
	m.acc.Observe(s)
	m.deps.Metrics.PresenceSamples.Inc()
}

func (m *Manager) handleSpeech(e speech.Event) {
	switch e.Kind {
	case speech.EventTranscript:
		// Transcript lives in the channel; the snapshot below picks it up.
	case speech.EventRestarted:
		m.deps.Metrics.RecognitionRestarts.Inc()
	case speech.EventError:
		m.deps.Metrics.RecognitionFailures.Inc()
		if m.state == StateActive {
			m.errText = e.Err.Error()
			m.statusText = "Speech recognition stopped. Type your answer or try again."
		}
	}
}

// teardown releases everything on loop exit.
func (m *Manager) teardown() {
	m.deps.Speech.StopSpeaking()
	m.deps.Speech.StopListening()
	m.deps.Camera.Stop()
	m.deps.Mic.Stop()
	if m.countdown != nil {
		m.countdown.Stop()
	}
	m.deps.Analyzer.Stop()
}

// publish refreshes the shared snapshot and best-effort notifies listeners.
func (m *Manager) publish() {
	snap := Status{
		State:           m.state,
		Mode:            m.mode,
		QuestionIndex:   m.index,
		QuestionCount:   len(m.questions),
		Transcript:      m.deps.Speech.Transcript(),
		RemainingSecs:   m.remaining,
		CameraLabel:     m.cameraLbl,
		Listening:       m.deps.Speech.Listening(),
		SpeechSupported: m.deps.Speech.Supported(),
		StatusText:      m.statusText,
		Error:           m.errText,
	}
	if m.state == StateActive && m.index < len(m.questions) {
		snap.QuestionText = m.questions[m.index].Text
		snap.QuestionTopic = m.questions[m.index].Topic
	}
	if len(m.results) > 0 {
		snap.Results = make(map[scoring.Mode]*scoring.Outcome, len(m.results))
		for mode, outcome := range m.results {
			snap.Results[mode] = outcome
		}
	}

	m.snapMu.Lock()
	m.snapshot = snap
	m.snapMu.Unlock()

	select {
	case m.events <- snap:
	default:
	}
}
