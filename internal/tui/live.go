package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/reprocess/internal/live"
)

// waitForLive blocks on a scope's subscription and delivers the next message.
// The caller re-issues it after every delivery. A nil channel means the scope
// has no live subscription.
func waitForLive(scopeID string, ch <-chan live.Message) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		m, ok := <-ch
		return liveMsg{scopeID: scopeID, msg: m, ok: ok}
	}
}
