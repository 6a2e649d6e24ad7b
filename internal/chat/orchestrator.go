package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"hrchat/internal/filestore"
	"hrchat/internal/models"
	"hrchat/internal/session"
)

const defaultSystemPrompt = `You are an HR assistant specialized in HAVAS.
Always respond in the language you are asked in.
If they ask in Spanish, respond in Spanish.
If they ask in French, respond in French.
If they ask in English, respond in English.
Use the provided information to give accurate and helpful answers.
If you don't have enough information, say so clearly.`

const emptyAnswerFallback = "I could not produce an answer to that. Please rephrase your question."

// Completer is the external completion collaborator.
type Completer interface {
	Generate(ctx context.Context, messages []*schema.Message) (string, error)
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Response       string              `json:"response"`
	DocumentsFound int                 `json:"documentsFound"`
	HasContext     bool                `json:"hasContext"`
	Source         string              `json:"source"`
	SessionInfo    models.SessionStats `json:"session_info"`
	ProcessingTime float64             `json:"processing_time"`
	Timestamp      time.Time           `json:"timestamp"`
}

// HealthStatus reports liveness of the two upstream dependencies.
type HealthStatus struct {
	Completion string `json:"completion"`
	Search     string `json:"search"`
	Healthy    bool   `json:"-"`
}

// Orchestrator ties registry, selector and completion together per request.
type Orchestrator struct {
	registry      *session.Registry
	files         *filestore.Store
	selector      *Selector
	completer     Completer
	searcher      Searcher
	historyWindow int
	callTimeout   time.Duration
	systemPrompt  string
}

// NewOrchestrator builds the per-request entry point. historyWindow bounds
// how many stored turns are resent per completion call.
func NewOrchestrator(registry *session.Registry, files *filestore.Store, selector *Selector, completer Completer, searcher Searcher, historyWindow int, callTimeout time.Duration) *Orchestrator {
	if historyWindow <= 0 {
		historyWindow = 4
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &Orchestrator{
		registry:      registry,
		files:         files,
		selector:      selector,
		completer:     completer,
		searcher:      searcher,
		historyWindow: historyWindow,
		callTimeout:   callTimeout,
		systemPrompt:  defaultSystemPrompt,
	}
}

// Handle runs one chat turn. The whole select-context, complete, append
// sequence holds the session's lock so sweeps and concurrent turns on the
// same session cannot interleave with it. A failed or cancelled completion
// appends nothing.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, message string) (*Reply, error) {
	start := time.Now()
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	o.registry.GetOrCreate(sessionID)

	var reply *Reply
	err := o.registry.Do(sessionID, func(h *session.Handle) error {
		sel, err := o.selector.Select(ctx, sessionID, message)
		if err != nil {
			return fmt.Errorf("select context: %w", err)
		}

		messages := o.buildMessages(h.Window(o.historyWindow), sel, message)

		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		defer cancel()
		answer, err := o.completer.Generate(callCtx, messages)
		if err != nil {
			return fmt.Errorf("completion: %w", err)
		}
		if answer == "" {
			answer = emptyAnswerFallback
		}

		h.Append(models.RoleUser, message)
		h.Append(models.RoleAssistant, answer)

		reply = &Reply{
			Response:       answer,
			DocumentsFound: sel.DocCount,
			HasContext:     sel.Text != "",
			Source:         sel.Source,
			SessionInfo:    h.Stats(),
			Timestamp:      time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		log.Printf("chat: session %s: %v", sessionID, err)
		return nil, err
	}
	reply.ProcessingTime = time.Since(start).Seconds()
	return reply, nil
}

// buildMessages assembles system prompt, trimmed history and the grounded
// user question in that order.
func (o *Orchestrator) buildMessages(history []models.Turn, sel Context, message string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: o.systemPrompt})
	for _, turn := range history {
		var role schema.RoleType
		switch turn.Role {
		case models.RoleAssistant:
			role = schema.Assistant
		case models.RoleSystem:
			role = schema.System
		default:
			role = schema.User
		}
		messages = append(messages, &schema.Message{Role: role, Content: turn.Content})
	}

	content := fmt.Sprintf("User's question: %s", message)
	if sel.Text != "" {
		content = fmt.Sprintf("Relevant information:\n%s\n\nUser's question: %s", sel.Text, message)
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: content})
	return messages
}

// StartNew discards the session's conversation and files and mints the id
// for its replacement. File clearing happens first; even if the session is
// unknown the caller still gets a usable fresh id.
func (o *Orchestrator) StartNew(sessionID string) (newID string, filesCleared int) {
	filesCleared = o.files.Clear(sessionID)
	newID = o.registry.Reset(sessionID)
	log.Printf("chat: new conversation for session %s -> %s (%d files cleared)", sessionID, newID, filesCleared)
	return newID, filesCleared
}

// Discard is the best-effort unload cleanup: drop the session and its files
// without minting a replacement. Losing this signal is fine, the periodic
// sweep is the backstop.
func (o *Orchestrator) Discard(sessionID string) {
	cleared := o.files.Clear(sessionID)
	removed := o.registry.Remove(sessionID)
	if removed || cleared > 0 {
		log.Printf("chat: discarded session %s (%d files)", sessionID, cleared)
	}
}

// Health probes both upstream dependencies in parallel. Each probe writes
// only its own result; the verdict is combined after both finish.
func (o *Orchestrator) Health(ctx context.Context) HealthStatus {
	var (
		completion, search     string
		completionOK, searchOK = true, true
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if o.completer == nil {
			completion = "not configured"
			completionOK = false
			return nil
		}
		completion = "configured"
		return nil
	})
	g.Go(func() error {
		if o.searcher == nil || !o.searcher.Enabled() {
			search = "not configured"
			return nil
		}
		if err := o.searcher.Ping(gctx); err != nil {
			search = fmt.Sprintf("unreachable: %v", err)
			searchOK = false
			return nil
		}
		search = "ok"
		return nil
	})
	_ = g.Wait()

	return HealthStatus{
		Completion: completion,
		Search:     search,
		Healthy:    completionOK && searchOK,
	}
}
