package dashboard

import (
	"context"

	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/models"
)

// PlanLister fetches the plan list.
type PlanLister interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

// ListResult is the outcome of one list fetch.
type ListResult struct {
	ScopeID string
	Seq     uint64
	Plans   []models.Plan
	Err     error
}

// ListScope is the plan list view's state.
type ListScope struct {
	scope
	api PlanLister

	plans  []models.Plan
	err    error
	loaded bool
}

// NewListScope creates a list scope. Call Open to subscribe and Fetch to load.
func NewListScope(lister PlanLister, opts Options) *ListScope {
	return &ListScope{
		scope: newScope("list", opts),
		api:   lister,
	}
}

// Open starts the live subscription and returns the initial fetch.
func (l *ListScope) Open(ctx context.Context) func() ListResult {
	l.open(ctx)
	return l.Fetch(ctx)
}

// Fetch tags a new fetch and returns the closure that performs it. The
// closure touches no scope state and may run on any goroutine.
func (l *ListScope) Fetch(ctx context.Context) func() ListResult {
	seq := l.nextSeq()
	id := l.id
	lister := l.api
	return func() ListResult {
		plans, err := lister.ListPlans(ctx)
		return ListResult{ScopeID: id, Seq: seq, Plans: plans, Err: err}
	}
}

// Apply installs r unless it is stale, foreign or the scope is closed. It
// reports whether r was applied.
func (l *ListScope) Apply(r ListResult) bool {
	if r.ScopeID != l.id || !l.accept(r.Seq, r.Err) {
		return false
	}
	if r.Err != nil {
		l.err = r.Err
		return true
	}
	l.plans = r.Plans
	l.err = nil
	l.loaded = true
	return true
}

// Reload fetches and applies synchronously.
func (l *ListScope) Reload(ctx context.Context) error {
	r := l.Fetch(ctx)()
	l.Apply(r)
	return r.Err
}

// HandleEvent reports whether ev calls for a fetch. Every notification does.
func (l *ListScope) HandleEvent(ev models.Event) bool {
	return l.HandleMessage(live.Message{Kind: live.KindEvent, Event: ev})
}

// HandleMessage processes one live message and reports whether to fetch.
func (l *ListScope) HandleMessage(m live.Message) bool {
	return l.handleLive(m, func(models.Event) bool { return true })
}

// Close ends the subscription; later results are discarded.
func (l *ListScope) Close() {
	l.close()
}

// Plans returns the last applied plan list.
func (l *ListScope) Plans() []models.Plan { return l.plans }

// Err returns the error of the last applied fetch, if it failed.
func (l *ListScope) Err() error { return l.err }

// Loaded reports whether any fetch has succeeded.
func (l *ListScope) Loaded() bool { return l.loaded }
