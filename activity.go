package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess    ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure    ActivityEventType = "auth.login.failure"
	ActivityEventLogout          ActivityEventType = "auth.logout"
	ActivityEventRegistered      ActivityEventType = "auth.register"
	ActivityEventSessionRejected ActivityEventType = "auth.session.rejected"
)

// ActivityEvent captures audit-friendly information about an action.
// It never carries passwords or raw tokens.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Email      string
	Reason     DenialReason
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// LogActivitySink writes activity events to a Logger
type LogActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LogActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := resolveLogger(s.Logger)

	args := []any{"event", string(event.EventType)}
	if event.UserID != "" {
		args = append(args, "user_id", event.UserID)
	}
	if event.Email != "" {
		args = append(args, "email", event.Email)
	}
	if event.Reason != ReasonNone {
		args = append(args, "reason", string(event.Reason))
	}

	if event.EventType == ActivityEventLoginFailure || event.EventType == ActivityEventSessionRejected {
		logger.Warn("auth activity", args...)
	} else {
		logger.Info("auth activity", args...)
	}
	return nil
}

func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
