// Package session tracks per-user conversational state: the active
// file, the chosen action and the ordered turn history.
package session

import (
	"context"
	"time"

	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/pipeline"
)

// State is the position of a user in the conversation flow.
type State int

const (
	// StateIdle: no pending interaction; a file may still be selected.
	StateIdle State = iota
	// StateWaitingQuery: file and action chosen, awaiting the query.
	StateWaitingQuery
	// StateChatMode: at least one turn answered, follow-ups welcome.
	StateChatMode
)

func (s State) String() string {
	switch s {
	case StateWaitingQuery:
		return "waiting_query"
	case StateChatMode:
		return "chat_mode"
	default:
		return "idle"
	}
}

// Action is what the user asked the turn to produce.
type Action int

const (
	ActionQuestion Action = iota
	ActionTable
)

// File identifies the active spreadsheet.
type File struct {
	ID   string
	Name string
	Path string
}

// Session is one user's conversation. Turns for one session are
// dispatched serially by the caller; Session itself is not
// concurrency-safe.
type Session struct {
	UserID  string
	State   State
	File    *File
	Action  Action
	History []llm.Message
}

// SelectFile activates a file and action and arms the session for the
// next query. Switching files discards the previous conversation.
func (s *Session) SelectFile(f File, action Action) {
	s.File = &f
	s.Action = action
	s.History = nil
	s.State = StateWaitingQuery
}

// ChooseAction re-arms the session against the already selected file.
// Unlike SelectFile it keeps the conversation history.
func (s *Session) ChooseAction(a Action) {
	s.Action = a
	s.State = StateWaitingQuery
}

// Cancel returns the session to idle. The file identity is retained so
// the user can restart against it without re-selecting. In-flight work
// is not preempted; its result is simply not folded into history.
func (s *Session) Cancel() {
	s.History = nil
	s.State = StateIdle
}

// EndChat terminates the conversation: history cleared, file retained.
func (s *Session) EndChat() {
	s.History = nil
	s.State = StateIdle
}

// Dispatch runs one turn through the pipeline and folds it into
// history: the prior turns are passed as context, then the user turn
// and the assistant reply are appended.
func (s *Session) Dispatch(ctx context.Context, p *pipeline.Pipeline, question string, opts TurnOptions) (*pipeline.Outcome, error) {
	req := s.buildRequest(question, s.Action, opts)
	out, err := p.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.History = append(s.History, llm.User(question), llm.Assistant(out.Text))
	if s.Action == ActionQuestion {
		s.State = StateChatMode
	} else {
		// A table run completes the interaction; the next turn starts
		// from the action choice with the same file.
		s.State = StateIdle
	}
	return out, nil
}

// reportQuestion is the canned turn used when the user asks for a
// report file mid-chat.
const reportQuestion = "Build a report file with the data we discussed in this conversation."

// Report generates a table artifact from the conversation so far. The
// request is dispatched on a copy of the history: the live history
// gains only the assistant reply that is shown to the user, not the
// synthetic report request.
func (s *Session) Report(ctx context.Context, p *pipeline.Pipeline, opts TurnOptions) (*pipeline.Outcome, error) {
	req := s.buildRequest(reportQuestion, ActionTable, opts)
	out, err := p.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	s.History = append(s.History, llm.Assistant(out.Text))
	return out, nil
}

// TurnOptions carries the per-deployment knobs a dispatch needs.
type TurnOptions struct {
	Model      string
	Budget     time.Duration
	OutputPath string
	UseCache   bool
}

func (s *Session) buildRequest(question string, action Action, opts TurnOptions) pipeline.Request {
	mode := pipeline.ModeQuestion
	if action == ActionTable {
		mode = pipeline.ModeTable
	}
	history := make([]llm.Message, len(s.History))
	copy(history, s.History)
	return pipeline.Request{
		File:       s.File.Path,
		Question:   question,
		Mode:       mode,
		Model:      opts.Model,
		History:    history,
		UseCache:   opts.UseCache,
		Budget:     opts.Budget,
		OutputPath: opts.OutputPath,
	}
}
