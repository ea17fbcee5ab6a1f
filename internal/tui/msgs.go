package tui

import (
	"encoding/json"

	"github.com/fentz26/reprocess/internal/composer"
	"github.com/fentz26/reprocess/internal/dashboard"
	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/session"
)

type loginResultMsg struct {
	session session.Session
	err     error
}

type listResultMsg struct {
	result dashboard.ListResult
}

type detailResultMsg struct {
	result dashboard.DetailResult
}

// liveMsg carries one message from a scope's subscription. ok is false once
// the channel has closed.
type liveMsg struct {
	scopeID string
	msg     live.Message
	ok      bool
}

type actionResultMsg struct {
	result dashboard.ActionResult
}

type submitResultMsg struct {
	result composer.SubmitResult
}

type jobInfoMsg struct {
	jobID string
	info  json.RawMessage
	err   error
}

type healthMsg struct {
	online bool
}
