package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// End reasons that point at something other than the user's own action.
const (
	reasonRemoteSignOut   = "remote_sign_out"
	reasonIdentityChanged = "identity_changed"
)

// Codes recorded for failures the operator has to look at rather than the user.
const (
	codeProviderContract = "provider_contract"
	codeInternal         = "internal_error"
)

// Event is one audited session action.
type Event struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	UserID  string    `json:"user_id,omitempty"`
	Role    string    `json:"role,omitempty"`
	Success bool      `json:"success"`
	// Code is the stable error code of a failed action.
	Code string `json:"code,omitempty"`
	// Reason is set on session_ended.
	Reason string `json:"reason,omitempty"`
	// Provider names the OAuth provider of an oauth_* action.
	Provider string `json:"provider,omitempty"`
	// StoredRole is the conflicting role of a rejected role change.
	StoredRole string `json:"stored_role,omitempty"`
}

// Level grades e for log routing: broken collaborators are errors; failed
// actions, rejected role changes and sessions ended from elsewhere are
// warnings; the rest is info.
func (e Event) Level() slog.Level {
	switch {
	case e.Code == codeProviderContract || e.Code == codeInternal:
		return slog.LevelError
	case !e.Success, e.StoredRole != "":
		return slog.LevelWarn
	case e.Reason == reasonRemoteSignOut || e.Reason == reasonIdentityChanged:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func (e Event) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 8)
	out = append(out, slog.String("action", e.Action), slog.Bool("success", e.Success))
	for _, kv := range [...][2]string{
		{"user_id", e.UserID},
		{"role", e.Role},
		{"code", e.Code},
		{"reason", e.Reason},
		{"provider", e.Provider},
		{"stored_role", e.StoredRole},
	} {
		if kv[1] != "" {
			out = append(out, slog.String(kv[0], kv[1]))
		}
	}
	return out
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, event Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// LogSink writes events as structured log records at [Event.Level].
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs event under the message "audit".
func (s *LogSink) Emit(ctx context.Context, event Event) {
	level := event.Level()
	if !s.logger.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(event.Time, level, "audit", 0)
	r.AddAttrs(event.attrs()...)
	_ = s.logger.Handler().Handle(ctx, r)
}

// Recorder keeps the most recent events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewRecorder creates a Recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{events: make([]Event, max(capacity, 1))}
}

// Emit stores event, evicting the oldest once the Recorder is full.
func (r *Recorder) Emit(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = event
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// Events returns the retained events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		return append([]Event(nil), r.events[:r.next]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

// ForUser returns the retained events of one user, oldest first.
func (r *Recorder) ForUser(userID string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out
}
