// Package dashboard keeps the client's view of plans consistent with the
// backend. A scope (list or detail) pairs sequence-numbered fetches with a
// live subscription; the Dispatcher runs mutations and the re-fetch that
// follows them.
//
// Scope types are not safe for concurrent mutation. Methods that change state
// (Fetch, Apply, HandleMessage, Close) must be called from the single
// goroutine that owns the scope; the closures returned by Fetch are the only
// part meant to run elsewhere.
package dashboard

import (
	"context"
	"log/slog"

	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/google/uuid"
)

// LiveSource opens live subscriptions. *live.Dialer satisfies it.
type LiveSource interface {
	Subscribe(ctx context.Context, scope string, url func() string) *live.Subscription
}

// LiveState describes a scope's live connection for display.
type LiveState string

const (
	LiveOff          LiveState = "off"
	LiveConnecting   LiveState = "connecting"
	LiveConnected    LiveState = "live"
	LiveReconnecting LiveState = "reconnecting"
	LiveClosed       LiveState = "offline"
)

// Options configures a scope.
type Options struct {
	Live    LiveSource
	LiveURL func() string
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// scope is the state shared by list and detail scopes: the sequence guard,
// the closed flag and the live subscription.
type scope struct {
	name       string
	id         string
	dispatched uint64
	applied    uint64
	closed     bool

	opts      Options
	sub       *live.Subscription
	liveState LiveState
	logger    *slog.Logger
}

func newScope(name string, opts Options) scope {
	id := uuid.NewString()
	return scope{
		name:      name,
		id:        id,
		opts:      opts,
		liveState: LiveOff,
		logger:    logging.OrDiscard(opts.Logger).With("scope", name, "scope_id", id),
	}
}

// ID identifies the scope instance in logs and results.
func (s *scope) ID() string { return s.id }

// Closed reports whether Close has been called.
func (s *scope) Closed() bool { return s.closed }

// LiveState reports the live connection state.
func (s *scope) LiveState() LiveState { return s.liveState }

// Messages returns the live subscription's channel, or nil when the scope has
// no live source. A nil channel blocks forever, which is what a waiting
// reader wants.
func (s *scope) Messages() <-chan live.Message {
	if s.sub == nil {
		return nil
	}
	return s.sub.Messages()
}

// nextSeq tags a new fetch.
func (s *scope) nextSeq() uint64 {
	s.dispatched++
	return s.dispatched
}

// accept reports whether a result with seq may be applied, recording it as
// the latest when it may. Results for a closed scope and results older than
// the last applied one are rejected.
func (s *scope) accept(seq uint64, err error) bool {
	switch {
	case s.closed:
		s.opts.Metrics.FetchResult(s.name, metrics.OutcomeClosed)
		s.logger.Debug("dropping result for closed scope", "seq", seq)
		return false
	case seq <= s.applied:
		s.opts.Metrics.FetchResult(s.name, metrics.OutcomeStale)
		s.logger.Debug("dropping stale result", "seq", seq, "applied", s.applied)
		return false
	}
	s.applied = seq
	if err != nil {
		s.opts.Metrics.FetchResult(s.name, metrics.OutcomeError)
	} else {
		s.opts.Metrics.FetchResult(s.name, metrics.OutcomeApplied)
	}
	return true
}

// open starts the live subscription, if configured.
func (s *scope) open(ctx context.Context) {
	if s.opts.Live == nil || s.opts.LiveURL == nil || s.sub != nil || s.closed {
		return
	}
	s.sub = s.opts.Live.Subscribe(ctx, s.name, s.opts.LiveURL)
	s.liveState = LiveConnecting
}

// handleLive updates the live state and reports whether the message calls for
// a fetch. matches decides for notifications.
func (s *scope) handleLive(m live.Message, matches func(models.Event) bool) bool {
	if s.closed {
		return false
	}
	switch m.Kind {
	case live.KindEvent:
		refetch := matches(m.Event)
		s.opts.Metrics.RecordLiveEvent(s.name, refetch)
		return refetch
	case live.KindConnected:
		s.liveState = LiveConnected
		// Notifications may have been missed while disconnected.
		return m.Reconnected
	case live.KindReconnecting:
		s.liveState = LiveReconnecting
	case live.KindClosed:
		s.liveState = LiveClosed
		if m.Err != nil {
			s.logger.Warn("live channel closed", "error", m.Err)
		}
	}
	return false
}

// close marks the scope closed and ends its subscription.
func (s *scope) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.sub != nil {
		s.sub.Close()
	}
	s.liveState = LiveOff
}
