// Package memory holds per-session conversation state: a bounded
// short-term message window, a durable append log, and a context blob.
// Expiry is enforced here, not by the routing engine.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTTL    = 24 * time.Hour
	windowSize    = 20
	initialState  = "initial"
	summaryLimit  = 5
	snippetLength = 100
)

// Store is the conversation memory store. Operations on different session
// ids never contend; operations on the same session id are serialized so a
// duplicate retried webhook cannot interleave merges or reorder appends.
type Store struct {
	redis           *redis.Client
	ttl             time.Duration
	defaultLanguage string
	tracer          trace.Tracer

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is reference-counted so the lock table only holds sessions
// with an operation in flight, not every session id ever seen.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the 24h session expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithDefaultLanguage sets the language of fresh sessions.
func WithDefaultLanguage(lang string) Option {
	return func(s *Store) {
		if lang != "" {
			s.defaultLanguage = lang
		}
	}
}

// NewStore creates a memory store backed by redis.
func NewStore(client *redis.Client, opts ...Option) *Store {
	if client == nil {
		panic("memory: redis client cannot be nil")
	}
	s := &Store{
		redis:           client,
		ttl:             defaultTTL,
		defaultLanguage: "en",
		tracer:          otel.Tracer("xonebot.internal.memory"),
		locks:           map[string]*sessionLock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session context, or a fresh default (empty cart, no
// tenant, default language, initial state) when none exists. A missing
// session is never an error.
func (s *Store) Get(ctx context.Context, sessionID string) (Context, error) {
	ctx, span := s.tracer.Start(ctx, "memory.get_context")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(sessionID)).Bytes()
	if err == redis.Nil {
		return s.defaultContext(sessionID), nil
	}
	if err != nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("memory: failed to load context: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("memory: failed to decode context: %w", err)
	}
	c := contextFromMap(sessionID, raw)
	if c.Language == "" {
		c.Language = s.defaultLanguage
	}
	if c.State == "" {
		c.State = initialState
	}
	return c, nil
}

// Append pushes a turn onto the bounded short-term window (oldest evicted
// on overflow) and independently persists it to the durable append log.
// Both carry the session TTL.
func (s *Store) Append(ctx context.Context, sessionID string, role Role, text string) error {
	ctx, span := s.tracer.Start(ctx, "memory.append")
	defer span.End()

	unlock := s.lockSession(sessionID)
	defer unlock()

	msg := Message{Role: role, Content: text, Timestamp: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to marshal message: %w", err)
	}

	pipe := s.redis.TxPipeline()
	window := windowKey(sessionID)
	pipe.RPush(ctx, window, data)
	pipe.LTrim(ctx, window, -windowSize, -1)
	pipe.Expire(ctx, window, s.ttl)

	log := logKey(sessionID)
	pipe.RPush(ctx, log, data)
	pipe.Expire(ctx, log, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("memory: failed to append message: %w", err)
	}
	return nil
}

// UpdateContext shallow-merges updates into the durable context blob
// (last-write-wins per key) and resets its expiry.
func (s *Store) UpdateContext(ctx context.Context, sessionID string, updates map[string]any) (Context, error) {
	ctx, span := s.tracer.Start(ctx, "memory.update_context")
	defer span.End()

	unlock := s.lockSession(sessionID)
	defer unlock()

	current := map[string]any{}
	data, err := s.redis.Get(ctx, contextKey(sessionID)).Bytes()
	if err != nil && err != redis.Nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("memory: failed to load context: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, &current); err != nil {
			span.RecordError(err)
			return Context{}, fmt.Errorf("memory: failed to decode context: %w", err)
		}
	} else {
		current = s.defaultContext(sessionID).toMap()
	}

	for k, v := range updates {
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("memory: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(sessionID), merged, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return Context{}, fmt.Errorf("memory: failed to persist context: %w", err)
	}

	c := contextFromMap(sessionID, current)
	if c.Language == "" {
		c.Language = s.defaultLanguage
	}
	return c, nil
}

// History returns up to limit most-recent turns from the short-term window.
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "memory.history")
	defer span.End()

	if limit <= 0 || limit > windowSize {
		limit = windowSize
	}
	raw, err := s.redis.LRange(ctx, windowKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("memory: failed to load history: %w", err)
	}

	messages := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Summarize renders the last n turns as "Role: text" lines for prompt
// context injection. A lossy compression, never the durable record.
func (s *Store) Summarize(ctx context.Context, sessionID string, n int) (string, error) {
	if n <= 0 {
		n = summaryLimit
	}
	messages, err := s.History(ctx, sessionID, n)
	if err != nil {
		return "", err
	}
	if len(messages) == 0 {
		return "No conversation history.", nil
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		who := "Customer"
		if msg.Role != RoleUser {
			who = "Bot"
		}
		// Rune-wise so a multibyte character at the boundary stays intact.
		content := msg.Content
		if utf8.RuneCountInString(content) > snippetLength {
			content = string([]rune(content)[:snippetLength]) + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", who, content))
	}
	return strings.Join(lines, "\n"), nil
}

// Reset drops all state for a session. Operator tooling only.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	unlock := s.lockSession(sessionID)
	defer unlock()

	if err := s.redis.Del(ctx, contextKey(sessionID), windowKey(sessionID), logKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("memory: failed to reset session: %w", err)
	}
	return nil
}

func (s *Store) defaultContext(sessionID string) Context {
	return Context{
		SessionID: sessionID,
		Language:  s.defaultLanguage,
		State:     initialState,
		StartedAt: time.Now().UTC(),
		Extra:     map[string]any{},
	}
}

// lockSession serializes operations per session id. The returned unlock
// drops the table entry once no operation holds or waits on it.
func (s *Store) lockSession(sessionID string) func() {
	s.mu.Lock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		s.locks[sessionID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

func contextKey(id string) string { return fmt.Sprintf("session:context:%s", id) }
func windowKey(id string) string  { return fmt.Sprintf("session:window:%s", id) }
func logKey(id string) string     { return fmt.Sprintf("session:log:%s", id) }
