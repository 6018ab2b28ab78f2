// Package agent runs one conversation session: it assembles the session
// from configuration and history, drives the turn loop against a provider
// adapter, executes requested tools and hands the finished thread to the
// store.
package agent

import (
	"fmt"
	"time"

	"llmgate/billing"
	"llmgate/model"
	"llmgate/storage"
	"llmgate/tools"
)

// Session is one in-flight conversation cycle, owned by a single request.
// Its durable remnant is the persisted thread; everything else dies with
// the request.
type Session struct {
	UserID     string
	ThreadID   string
	ProviderID string

	History []model.Message
	System  string

	Adapter   model.Adapter
	Catalogue []model.ToolDescriptor
	Executor  *tools.Executor
	Remote    tools.RemoteCaller

	Store   *storage.ThreadStore
	Pricing billing.PriceTable

	// CallerProvidedKey marks a bring-your-own-key session: usage is
	// recorded with zero cost.
	CallerProvidedKey bool

	// KeepToolTurnText controls whether text streamed before a tool call
	// is kept as content on the tool-request message.
	KeepToolTurnText bool

	Usage []billing.Record

	// usagePersisted counts the leading Usage records already written to the
	// store, so records are never appended twice.
	usagePersisted int
}

// Builder assembles a Session. Zero value is unusable; start from
// NewBuilder.
type Builder struct {
	session *Session
	err     error
}

// NewBuilder starts a session for one authenticated user against one
// adapter.
func NewBuilder(userID string, adapter model.Adapter) *Builder {
	return &Builder{
		session: &Session{
			UserID:           userID,
			Adapter:          adapter,
			Pricing:          billing.DefaultPricing,
			KeepToolTurnText: true,
		},
	}
}

// WithThread resumes an existing persisted thread: its history becomes the
// session's base history.
func (b *Builder) WithThread(store *storage.ThreadStore, threadID string) *Builder {
	if b.err != nil {
		return b
	}
	b.session.Store = store
	if threadID == "" {
		return b
	}

	thread, err := store.Load(threadID)
	if err != nil {
		b.err = fmt.Errorf("failed to resume thread %s: %w", threadID, err)
		return b
	}
	if thread.UserID != b.session.UserID {
		b.err = fmt.Errorf("thread %s does not belong to user %s", threadID, b.session.UserID)
		return b
	}

	b.session.ThreadID = thread.ID
	b.session.History = thread.Messages
	if b.session.System == "" {
		b.session.System = thread.SystemPrompt
	}
	return b
}

// WithSystem sets the system prompt.
func (b *Builder) WithSystem(system string) *Builder {
	if system != "" {
		b.session.System = system
	}
	return b
}

// WithPrompt appends the incoming user prompt to the history.
func (b *Builder) WithPrompt(prompt string) *Builder {
	b.session.History = append(b.session.History, model.Message{
		Role:      model.RoleUser,
		Content:   prompt,
		Timestamp: time.Now(),
	})
	return b
}

// Attachment is a file the client sent along with the prompt. Content is
// the file's text; binary formats are expected to be extracted upstream.
type Attachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// WithAttachments folds file attachments into the pending user prompt as
// fenced sections. Call after WithPrompt.
func (b *Builder) WithAttachments(attachments []Attachment) *Builder {
	if b.err != nil || len(attachments) == 0 {
		return b
	}

	last := len(b.session.History) - 1
	if last < 0 || b.session.History[last].Role != model.RoleUser {
		b.err = fmt.Errorf("attachments require a user prompt")
		return b
	}

	content := b.session.History[last].Content
	for _, a := range attachments {
		content += fmt.Sprintf("\n\n--- Attachment: %s ---\n%s", a.Name, a.Content)
	}
	b.session.History[last].Content = content
	return b
}

// WithTools attaches the tool catalogue, the executor that runs direct
// calls and the remote caller that owns namespaced server tools.
func (b *Builder) WithTools(catalogue []model.ToolDescriptor, executor *tools.Executor, remote tools.RemoteCaller) *Builder {
	b.session.Catalogue = catalogue
	b.session.Executor = executor
	b.session.Remote = remote
	return b
}

// WithPricing overrides the pricing table.
func (b *Builder) WithPricing(pricing billing.PriceTable) *Builder {
	if pricing != nil {
		b.session.Pricing = pricing
	}
	return b
}

// WithProviderID tags the session with the configured provider's id for
// persistence.
func (b *Builder) WithProviderID(id string) *Builder {
	b.session.ProviderID = id
	return b
}

// WithCallerKey marks the session as bring-your-own-key.
func (b *Builder) WithCallerKey(byok bool) *Builder {
	b.session.CallerProvidedKey = byok
	return b
}

// Build validates and returns the session.
func (b *Builder) Build() (*Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.session.Adapter == nil {
		return nil, fmt.Errorf("session requires an adapter")
	}
	if b.session.UserID == "" {
		return nil, fmt.Errorf("session requires a user id")
	}
	if len(b.session.History) == 0 {
		return nil, fmt.Errorf("session requires at least one message")
	}
	return b.session, nil
}

// buildRequest assembles the outbound payload from the current history.
// Safe to call once per turn; the history grows between calls but the
// transform itself never mutates it.
func (s *Session) buildRequest() *model.Request {
	return &model.Request{
		Model:    s.Adapter.Model(),
		Messages: s.History,
		System:   s.System,
		Tools:    s.Catalogue,
	}
}

// recordUsage converts a canonical usage payload into a billing record
// against the session's pricing table.
func (s *Session) recordUsage(usage model.TokenUsage) billing.Record {
	counts := billing.TokenCounts{
		Input:      usage.InputTokens,
		Output:     usage.OutputTokens,
		Cached:     usage.CachedTokens,
		CacheHit:   usage.CacheHitTokens,
		CacheMiss:  usage.CacheMissTokens,
		CacheRead:  usage.CacheReadTokens,
		CacheWrite: usage.CacheWriteTokens,
	}
	rec := billing.Compute(s.Adapter.Brand(), s.Adapter.Model(), counts, s.Pricing, s.CallerProvidedKey)
	s.Usage = append(s.Usage, rec)
	return rec
}

// persist hands the history and accumulated usage to the thread store and
// pins the assigned thread id on the session.
func (s *Session) persist() error {
	if s.Store == nil {
		return nil
	}

	thread := &storage.Thread{
		ID:           s.ThreadID,
		UserID:       s.UserID,
		ProviderID:   s.ProviderID,
		Model:        s.Adapter.Model(),
		SystemPrompt: s.System,
		Messages:     s.History,
	}
	if err := s.Store.Save(thread); err != nil {
		return err
	}
	s.ThreadID = thread.ID

	return s.persistUsage()
}

// persistUsage appends the not-yet-written usage records to the established
// thread. Called on success as part of persist and on terminal failure, so
// billable round-trips survive even when the turn does not: a session that
// dies at the recursion ceiling still made real upstream calls.
func (s *Session) persistUsage() error {
	if s.Store == nil || s.ThreadID == "" {
		return nil
	}

	for s.usagePersisted < len(s.Usage) {
		if err := s.Store.AppendUsage(s.ThreadID, s.Usage[s.usagePersisted]); err != nil {
			return err
		}
		s.usagePersisted++
	}
	return nil
}
