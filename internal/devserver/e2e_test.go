package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/fentz26/reprocess/internal/scheduler"
	"github.com/fentz26/reprocess/internal/session"
	"github.com/fentz26/reprocess/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stack is a client wired the way the CLI and TUI wire it.
type stack struct {
	srv     *Server
	url     string
	session *session.Store
	client  *api.Client
	dbPath  string
	creates *atomic.Int32
}

func newStack(t *testing.T, opts Options) *stack {
	t.Helper()
	if opts.Scheduler == nil {
		opts.Scheduler = &scheduler.Config{GlobalMax: 4, Interval: 10 * time.Millisecond}
	}
	srv := NewServer(opts)

	creates := &atomic.Int32{}
	handler := srv.Handler()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/plans" {
			creates.Add(1)
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		ts.Close()
	})

	dbPath := filepath.Join(t.TempDir(), "session.db")
	st := openSession(t, dbPath)

	client := api.NewClient(ts.URL,
		api.WithTokenSource(st),
		api.WithUnauthorizedHandler(st.Invalidate),
	)
	st.SetAuthenticator(client)

	return &stack{srv: srv, url: ts.URL, session: st, client: client, dbPath: dbPath, creates: creates}
}

func openSession(t *testing.T, dbPath string) *session.Store {
	t.Helper()
	kv, err := store.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	st, err := session.New(context.Background(), kv)
	require.NoError(t, err)
	return st
}

func (s *stack) login(t *testing.T, username, password string) {
	t.Helper()
	_, err := s.session.Login(context.Background(), username, password)
	require.NoError(t, err)
}

func TestEndToEnd_LoginPersistsSessionAndListsPlans(t *testing.T) {
	s := newStack(t, Options{Seed: true})
	s.login(t, "admin", "admin123")

	reopened := openSession(t, s.dbPath)
	sess := reopened.Read()
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	assert.Equal(t, s.session.Token(), sess.Token)

	list := dashboard.NewListScope(s.client, dashboard.Options{})
	require.NoError(t, list.Reload(context.Background()))
	require.Len(t, list.Plans(), 1)
	assert.Equal(t, "Sample Plan", list.Plans()[0].Name)
}

func TestEndToEnd_ComposerSubmitsTwoTasks(t *testing.T) {
	s := newStack(t, Options{})
	s.login(t, "admin", "admin123")
	ctx := context.Background()

	c := composer.New()
	idx := c.AddTask()
	require.NoError(t, c.UpdateTask(idx, composer.FieldType, "coordinator"))
	require.NoError(t, c.UpdateTask(idx, composer.FieldJobID, "0002-C"))
	require.NoError(t, c.UpdateTask(idx, composer.FieldAction, "1-3"))

	plan, err := c.Submit(ctx, s.client)
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.creates.Load())
	assert.Equal(t, 1, c.Len(), "composer resets to the seed draft")

	detail, err := s.client.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, models.TaskTypeWorkflow, detail.Tasks[0].Type)
	assert.True(t, detail.Tasks[0].FailNodesOnly)
	assert.Equal(t, models.TaskTypeCoordinator, detail.Tasks[1].Type)
	assert.Equal(t, "1-3", detail.Tasks[1].Action)
	assert.Empty(t, detail.Tasks[1].SkipNodes)
}

func TestEndToEnd_ComposerKeepsDraftOnRejection(t *testing.T) {
	s := newStack(t, Options{})
	s.login(t, "viewer", "viewer123")

	c := composer.New()
	_, err := c.Submit(context.Background(), s.client)
	require.Error(t, err)
	assert.Equal(t, `{"detail":"Insufficient permissions"}`, c.LastError())
	assert.Equal(t, 1, c.Len())
}

func TestEndToEnd_EmptyPlanProgressIsZero(t *testing.T) {
	s := newStack(t, Options{})
	s.login(t, "admin", "admin123")
	ctx := context.Background()

	plan, err := s.client.CreatePlan(ctx, api.CreatePlanRequest{
		Name: "empty", TargetAddress: "http://oozie:11000/oozie", MaxConcurrency: 1,
	})
	require.NoError(t, err)

	detail := dashboard.NewDetailScope(s.client, plan.ID, dashboard.Options{})
	require.NoError(t, detail.Reload(ctx))
	require.NotNil(t, detail.Detail())
	assert.Empty(t, detail.Detail().Tasks)
	assert.Equal(t, 0, dashboard.Progress(detail.Detail().Tasks))
}

func TestEndToEnd_ListErrorShowsServerText(t *testing.T) {
	s := newStack(t, Options{})
	require.NoError(t, s.session.Set(session.Session{Token: "stale", Role: models.RoleAdmin}))

	list := dashboard.NewListScope(s.client, dashboard.Options{})
	err := list.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, `{"detail":"Invalid token"}`, list.Err().Error())
	assert.False(t, s.session.Read().Authenticated(), "401 clears the session")
}

func TestEndToEnd_PlanActionStatusComesFromRefetch(t *testing.T) {
	s := newStack(t, Options{Seed: true})
	s.login(t, "admin", "admin123")
	ctx := context.Background()

	plans, err := s.client.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	detail := dashboard.NewDetailScope(s.client, plans[0].ID, dashboard.Options{})
	require.NoError(t, detail.Reload(ctx))
	assert.Equal(t, models.PlanStatusDraft, detail.Detail().Plan.Status)

	d := dashboard.NewDispatcher(s.client, detail, s.session, dashboard.Options{})
	require.NoError(t, d.DoPlanAction(ctx, models.PlanActionStart))
	assert.Equal(t, models.PlanStatusRunning, detail.Detail().Plan.Status)

	// The simulated executor drains the plan; the seeded bundle task fails.
	s.srv.StartScheduler()
	require.Eventually(t, func() bool {
		if err := detail.Reload(ctx); err != nil {
			return false
		}
		return dashboard.Progress(detail.Detail().Tasks) == 100 &&
			detail.Detail().Plan.Status == models.PlanStatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	logs := dashboard.RecentLogs(detail.Detail().Tasks)
	require.Len(t, logs, 3)
	assert.Equal(t, "bundle-fail", logs[0].Name)

	raw, err := d.JobInfo(ctx, detail.Detail().Tasks[0].JobID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"SUCCEEDED"`)
}

func TestEndToEnd_ViewerRefusedLocally(t *testing.T) {
	s := newStack(t, Options{Seed: true})
	s.login(t, "viewer", "viewer123")
	ctx := context.Background()

	plans, err := s.client.ListPlans(ctx)
	require.NoError(t, err)
	detail := dashboard.NewDetailScope(s.client, plans[0].ID, dashboard.Options{})
	require.NoError(t, detail.Reload(ctx))

	d := dashboard.NewDispatcher(s.client, detail, s.session, dashboard.Options{})
	assert.False(t, d.CanMutate())
	assert.ErrorIs(t, d.DoPlanAction(ctx, models.PlanActionStart), dashboard.ErrForbidden)
}

// nextMessage waits for a live message on sub or fails the test.
func nextMessage(t *testing.T, ch <-chan live.Message) live.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "live channel closed unexpectedly")
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("Timeout waiting for live message")
		return live.Message{}
	}
}

func TestEndToEnd_LiveNotificationsDriveRefetch(t *testing.T) {
	s := newStack(t, Options{})
	s.login(t, "admin", "admin123")
	ctx := context.Background()

	other, err := s.client.CreatePlan(ctx, twoTaskRequest())
	require.NoError(t, err)
	watched, err := s.client.CreatePlan(ctx, twoTaskRequest())
	require.NoError(t, err)

	dialer := live.NewDialer(live.DefaultConfig(), nil, nil)
	opts := dashboard.Options{Live: dialer, LiveURL: s.client.LiveURL}

	list := dashboard.NewListScope(s.client, opts)
	list.Apply(list.Open(ctx)())
	defer list.Close()

	detail := dashboard.NewDetailScope(s.client, watched.ID, opts)
	detail.Apply(detail.Open(ctx)())
	defer detail.Close()

	for _, sc := range []interface {
		Messages() <-chan live.Message
		HandleMessage(live.Message) bool
		LiveState() dashboard.LiveState
	}{list, detail} {
		m := nextMessage(t, sc.Messages())
		assert.Equal(t, live.KindConnected, m.Kind)
		assert.False(t, sc.HandleMessage(m))
		assert.Equal(t, dashboard.LiveConnected, sc.LiveState())
	}
	require.Eventually(t, func() bool { return s.srv.Hub().Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	// A change to another plan refreshes the list but not the detail view.
	_, err = s.client.PlanAction(ctx, other.ID, models.PlanActionPause)
	require.NoError(t, err)

	m := nextMessage(t, list.Messages())
	assert.Equal(t, other.ID, m.Event.PlanID)
	assert.True(t, list.HandleMessage(m))
	list.Apply(list.Fetch(ctx)())
	assert.Equal(t, models.PlanStatusPaused, list.Plans()[1].Status)

	m = nextMessage(t, detail.Messages())
	assert.False(t, detail.HandleMessage(m))

	// A change to the watched plan refreshes the detail view.
	_, err = s.client.PlanAction(ctx, watched.ID, models.PlanActionStop)
	require.NoError(t, err)

	m = nextMessage(t, detail.Messages())
	require.True(t, detail.HandleMessage(m))
	detail.Apply(detail.Fetch(ctx)())
	assert.Equal(t, models.PlanStatusStopped, detail.Detail().Plan.Status)
}
