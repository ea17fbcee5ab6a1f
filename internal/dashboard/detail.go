package dashboard

import (
	"context"

	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/models"
)

// PlanGetter fetches one plan with its tasks.
type PlanGetter interface {
	GetPlan(ctx context.Context, id int64) (*models.PlanDetail, error)
}

// DetailResult is the outcome of one detail fetch.
type DetailResult struct {
	ScopeID string
	Seq     uint64
	Detail  *models.PlanDetail
	Err     error
}

// DetailScope is the plan detail view's state.
type DetailScope struct {
	scope
	api    PlanGetter
	planID int64

	detail *models.PlanDetail
	err    error
}

// NewDetailScope creates a detail scope for planID.
func NewDetailScope(getter PlanGetter, planID int64, opts Options) *DetailScope {
	return &DetailScope{
		scope:  newScope("detail", opts),
		api:    getter,
		planID: planID,
	}
}

// PlanID returns the plan this scope shows.
func (d *DetailScope) PlanID() int64 { return d.planID }

// Open starts the live subscription and returns the initial fetch.
func (d *DetailScope) Open(ctx context.Context) func() DetailResult {
	d.open(ctx)
	return d.Fetch(ctx)
}

// Fetch tags a new fetch and returns the closure that performs it.
func (d *DetailScope) Fetch(ctx context.Context) func() DetailResult {
	seq := d.nextSeq()
	id, planID := d.id, d.planID
	getter := d.api
	return func() DetailResult {
		detail, err := getter.GetPlan(ctx, planID)
		return DetailResult{ScopeID: id, Seq: seq, Detail: detail, Err: err}
	}
}

// Apply installs r unless it is stale, foreign or the scope is closed.
func (d *DetailScope) Apply(r DetailResult) bool {
	if r.ScopeID != d.id || !d.accept(r.Seq, r.Err) {
		return false
	}
	if r.Err != nil {
		d.err = r.Err
		return true
	}
	d.detail = r.Detail
	d.err = nil
	return true
}

// Reload fetches and applies synchronously.
func (d *DetailScope) Reload(ctx context.Context) error {
	r := d.Fetch(ctx)()
	d.Apply(r)
	return r.Err
}

// HandleEvent reports whether ev concerns this plan.
func (d *DetailScope) HandleEvent(ev models.Event) bool {
	return d.HandleMessage(live.Message{Kind: live.KindEvent, Event: ev})
}

// HandleMessage processes one live message and reports whether to fetch.
func (d *DetailScope) HandleMessage(m live.Message) bool {
	return d.handleLive(m, func(ev models.Event) bool { return ev.PlanID == d.planID })
}

// Close ends the subscription; later results are discarded.
func (d *DetailScope) Close() {
	d.close()
}

// Detail returns the last applied snapshot, or nil before the first success.
func (d *DetailScope) Detail() *models.PlanDetail { return d.detail }

// Err returns the error of the last applied fetch, if it failed.
func (d *DetailScope) Err() error { return d.err }
