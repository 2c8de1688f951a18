// Package engine answers free-text questions: plan, resolve locally, fall
// back to the server, format.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/user/healthchat/internal/planner"
	"github.com/user/healthchat/internal/resolver"
	"github.com/user/healthchat/internal/types"
)

// DefaultConversation is used by Ask.
const DefaultConversation = types.DefaultConversation

// Remote resolves a plan against the server.
type Remote interface {
	Resolve(ctx context.Context, plan *types.Plan) ([]types.Record, error)
}

// Engine implements the question/answer turn. Turns of one conversation
// must not run concurrently; the gateway queue provides that ordering.
type Engine struct {
	planner     *planner.Planner
	local       *resolver.Resolver
	remote      Remote
	log         types.HistoryStore
	subject     types.SubjectID
	historySize int
	historyIdle time.Duration

	mu        sync.Mutex
	histories map[types.ConversationID]*conversation
}

// DefaultHistoryIdle is how long an untouched conversation keeps its turns.
const DefaultHistoryIdle = time.Hour

type conversation struct {
	history  *planner.History
	lastUsed time.Time
}

type Option func(*Engine)

// WithRemote enables the remote fallback.
func WithRemote(r Remote) Option {
	return func(e *Engine) { e.remote = r }
}

// WithHistoryLog persists every exchange.
func WithHistoryLog(h types.HistoryStore) Option {
	return func(e *Engine) { e.log = h }
}

// WithHistoryIdle sets how long an unused conversation is remembered.
func WithHistoryIdle(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.historyIdle = d
		}
	}
}

// WithHistorySize sets how many turns each conversation remembers.
func WithHistorySize(n int) Option {
	return func(e *Engine) { e.historySize = n }
}

func New(p *planner.Planner, local *resolver.Resolver, subject types.SubjectID, opts ...Option) *Engine {
	e := &Engine{
		planner:     p,
		local:       local,
		subject:     subject,
		historySize: planner.DefaultHistorySize,
		historyIdle: DefaultHistoryIdle,
		histories:   make(map[types.ConversationID]*conversation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subject is the patient questions are answered for.
func (e *Engine) Subject() types.SubjectID {
	return e.subject
}

// History returns the in-memory turns of a conversation. Conversations idle
// for longer than the idle period are forgotten on the way.
func (e *Engine) History(conv types.ConversationID) *planner.History {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, c := range e.histories {
		if id != conv && now.Sub(c.lastUsed) > e.historyIdle {
			delete(e.histories, id)
		}
	}
	c, ok := e.histories[conv]
	if !ok {
		c = &conversation{history: planner.NewHistory(e.historySize)}
		e.histories[conv] = c
	}
	c.lastUsed = now
	return c.history
}

// Conversations is the number of conversations held in memory.
func (e *Engine) Conversations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.histories)
}

// Ask answers text in the default conversation.
func (e *Engine) Ask(ctx context.Context, text string) (*types.Answer, error) {
	return e.AskIn(ctx, DefaultConversation, text)
}

// AskIn answers text within conv. When the server lookup fails the answer
// still carries a readable explanation and the typed error is returned
// alongside it.
func (e *Engine) AskIn(ctx context.Context, conv types.ConversationID, text string) (*types.Answer, error) {
	if conv == "" {
		conv = DefaultConversation
	}
	history := e.History(conv)
	answer := &types.Answer{ConversationID: conv, Source: types.SourceNone}

	result := e.planner.Plan(text, e.subject, history)
	if result.Clarification != nil {
		answer.Clarification = result.Clarification
		answer.Text = FormatClarification(result.Clarification)
		e.record(ctx, conv, text, answer, nil)
		history.Add(types.Turn{Text: text, At: time.Now()})
		return answer, nil
	}

	plan := result.Plan
	answer.Plan = plan
	records, source, err := e.resolve(ctx, plan)
	if err != nil {
		answer.Text = FormatFailure(plan.ResourceType, err)
	} else {
		answer.Records = records
		answer.Source = source
		answer.Text = FormatRecords(plan, records)
	}

	e.record(ctx, conv, text, answer, err)
	history.Add(types.Turn{Text: text, ResourceType: plan.ResourceType, Matches: len(answer.Records), At: time.Now()})
	return answer, err
}

func (e *Engine) resolve(ctx context.Context, plan *types.Plan) ([]types.Record, string, error) {
	if plan.Strategy != types.StrategyRemoteOnly {
		records := e.local.Resolve(ctx, plan.Subject, plan.ResourceType, plan.Filters, plan.RecordIndex)
		if len(records) > 0 {
			return records, types.SourceLocal, nil
		}
		if !plan.FallbackToRemote || plan.Strategy == types.StrategyLocalOnly {
			return records, types.SourceNone, nil
		}
	}
	if e.remote == nil {
		return []types.Record{}, types.SourceNone, nil
	}

	slog.Debug("resolving remotely", "resource_type", plan.ResourceType, "strategy", plan.Strategy)
	records, err := e.remote.Resolve(ctx, plan)
	if err != nil {
		slog.Warn("remote resolve failed", "resource_type", plan.ResourceType, "error", err)
		return nil, types.SourceNone, err
	}
	if len(records) == 0 {
		return records, types.SourceNone, nil
	}
	return records, types.SourceRemote, nil
}

func (e *Engine) record(ctx context.Context, conv types.ConversationID, question string, answer *types.Answer, err error) {
	if e.log == nil {
		return
	}
	entry := &types.HistoryEntry{
		ConversationID: conv,
		Question:       question,
		Answer:         answer.Text,
		Matches:        len(answer.Records),
		Source:         answer.Source,
		Clarification:  answer.Clarification != nil,
		At:             time.Now(),
	}
	if answer.Plan != nil {
		entry.ResourceType = answer.Plan.ResourceType
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if err := e.log.Append(ctx, entry); err != nil {
		slog.Warn("append history failed", "conversation_id", string(conv), "error", err)
	}
}
