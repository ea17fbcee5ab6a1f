package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fentz26/reprocess/internal/api"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/session"
	"github.com/fentz26/reprocess/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

var errNotLoggedIn = errors.New("not logged in (run 'reprocess login')")

// clientEnv is everything a command needs to talk to the backend.
type clientEnv struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	kv      *store.Store
	session *session.Store
	client  *api.Client
	closers []io.Closer
	cancel  context.CancelFunc
}

// newClientEnv opens the session database and builds the API client. With
// logToFile set, logs go to the configured file instead of stderr.
func newClientEnv(ctx context.Context, logToFile bool) (*clientEnv, error) {
	e := &clientEnv{}

	if logToFile {
		logger, f, err := logging.NewFile(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
		if err != nil {
			return nil, err
		}
		e.logger = logger
		e.closers = append(e.closers, f)
	} else {
		e.logger = logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	}

	if cfg.Metrics.Addr != "" {
		registry := prometheus.NewRegistry()
		e.metrics = metrics.NewMetrics(registry)
		mctx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		go func() {
			if err := metrics.Serve(mctx, cfg.Metrics.Addr, registry); err != nil {
				e.logger.Error("metrics endpoint failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	kv, err := store.New(cfg.SessionDB)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}
	e.kv = kv

	st, err := session.New(ctx, kv)
	if err != nil {
		e.Close()
		return nil, err
	}
	st.SetLogger(e.logger)
	e.session = st

	e.client = api.NewClient(cfg.API,
		api.WithTokenSource(st),
		api.WithUnauthorizedHandler(st.Invalidate),
		api.WithTimeout(cfg.Timeout),
		api.WithLogger(e.logger),
		api.WithMetrics(e.metrics),
	)
	st.SetAuthenticator(e.client)
	return e, nil
}

// Close releases the session database, the log file and the metrics endpoint.
func (e *clientEnv) Close() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.kv != nil {
		e.kv.Close()
	}
	for _, c := range e.closers {
		c.Close()
	}
}

func (e *clientEnv) requireSession() error {
	if !e.session.Read().Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

func (e *clientEnv) dialer() *live.Dialer {
	lc := live.DefaultConfig()
	lc.Reconnect = cfg.Live.Reconnect
	if cfg.Live.MaxBackoff > 0 {
		lc.MaxBackoff = cfg.Live.MaxBackoff
	}
	return live.NewDialer(lc, e.logger, e.metrics)
}

func (e *clientEnv) scopeOptions(withLive bool) dashboard.Options {
	opts := dashboard.Options{Logger: e.logger, Metrics: e.metrics}
	if withLive {
		opts.Live = e.dialer()
		opts.LiveURL = e.client.LiveURL
	}
	return opts
}

// planScope returns a detail scope for planID and a dispatcher acting on it.
func (e *clientEnv) planScope(planID int64, withLive bool) (*dashboard.DetailScope, *dashboard.Dispatcher) {
	opts := e.scopeOptions(withLive)
	scope := dashboard.NewDetailScope(e.client, planID, opts)
	return scope, dashboard.NewDispatcher(e.client, scope, e.session, opts)
}
