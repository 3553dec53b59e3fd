// Package dialog runs the multi-step conversations the bot holds with a
// user. A Flow is a fixed ordered list of states, each collecting one
// field; a Session is a user's progress through one flow. Flows are data,
// the stepping logic lives here once.
package dialog

import (
	"context"
	"errors"

	"github.com/1IT-Programmer/BotTaxi/internal/outcome"
	"github.com/1IT-Programmer/BotTaxi/internal/store"
	"github.com/1IT-Programmer/BotTaxi/pkg/validation"
)

type EventKind int

const (
	EventText EventKind = iota
	EventContact
	EventCommand
	EventButton
)

// Event is one normalised incoming update. Text holds free text, the
// command name without its slash, or the button payload depending on Kind.
// Phone is set for contact shares.
type Event struct {
	Kind  EventKind
	Text  string
	Phone string
}

// Input is what a state validator sees: the event plus the dialog context
// collected so far. User is nil while the sender is not registered yet.
type Input struct {
	Event  Event
	User   *store.User
	Fields map[string]any
}

// State collects one field. Accept validates the input and returns the
// value to store under Field. A validation.ErrInvalid return re-prompts,
// any other error is a dependency failure that leaves the session as is.
type State struct {
	Field  string
	Prompt outcome.Prompt
	Accept func(ctx context.Context, in Input) (any, error)
}

// Flow is an ordered list of states plus the terminal action run once all
// fields are collected.
type Flow struct {
	Name   string
	States []State
	Finish func(ctx context.Context, telegramID int64, u *store.User, fields map[string]any) (outcome.Outcome, error)
}

// Start opens a fresh session positioned on the first state.
func (f *Flow) Start() *Session {
	return &Session{Flow: f, Fields: make(map[string]any)}
}

// Session is one user's progress through a flow. The router serialises
// access per user, so a session itself needs no locking.
type Session struct {
	Flow   *Flow
	Fields map[string]any
	idx    int
}

// Prompt returns the question for the current state.
func (s *Session) Prompt() outcome.Prompt {
	return s.Flow.States[s.idx].Prompt
}

type StepStatus int

const (
	// StepReprompt: input rejected, session unchanged, ask again.
	StepReprompt StepStatus = iota
	// StepNext: field stored, ask for the next one.
	StepNext
	// StepDone: flow finished, session must be discarded. Either Outcome
	// or Err is set.
	StepDone
	// StepFailed: a dependency failed mid-validation. Session unchanged,
	// the same input may be retried.
	StepFailed
)

type StepResult struct {
	Status  StepStatus
	Prompt  outcome.Prompt
	Outcome outcome.Outcome
	Err     error
}

// Step feeds one event into the session. Only text and contact events
// belong here; the router intercepts commands and buttons before calling.
func (s *Session) Step(ctx context.Context, telegramID int64, u *store.User, ev Event) StepResult {
	st := s.Flow.States[s.idx]
	v, err := st.Accept(ctx, Input{Event: ev, User: u, Fields: s.Fields})
	if err != nil {
		if errors.Is(err, validation.ErrInvalid) {
			return StepResult{Status: StepReprompt, Prompt: st.Prompt, Err: err}
		}
		return StepResult{Status: StepFailed, Err: err}
	}
	s.Fields[st.Field] = v
	s.idx++
	if s.idx < len(s.Flow.States) {
		return StepResult{Status: StepNext, Prompt: s.Flow.States[s.idx].Prompt}
	}
	out, err := s.Flow.Finish(ctx, telegramID, u, s.Fields)
	if err != nil {
		return StepResult{Status: StepDone, Err: err}
	}
	return StepResult{Status: StepDone, Outcome: out}
}
