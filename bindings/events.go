package bindings

import (
	"context"

	"github.com/shopspring/decimal"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/MJE43/neon-arcade/internal/api"
	"github.com/MJE43/neon-arcade/internal/round"
	"github.com/MJE43/neon-arcade/internal/scripting"
)

// Frontend event names. They match the websocket event types.
const (
	EventBalance     = "arcade:" + api.EventBalance
	EventRound       = "arcade:" + api.EventRound
	EventScriptState = "arcade:" + api.EventScriptState
	EventScriptLog   = "arcade:" + api.EventScriptLog
)

// eventBridge forwards engine events to the Wails runtime.
type eventBridge struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})
}

func (b *eventBridge) send(name string, data interface{}) {
	if b.ctx == nil {
		return
	}
	emit := b.emit
	if emit == nil {
		emit = wruntime.EventsEmit
	}
	emit(b.ctx, name, data)
}

func (b *eventBridge) EmitBalance(balance decimal.Decimal) {
	b.send(EventBalance, api.BalanceResponse{Balance: balance})
}

func (b *eventBridge) EmitRound(s round.Snapshot) { b.send(EventRound, s) }

func (b *eventBridge) EmitScriptState(s scripting.EngineSnapshot) { b.send(EventScriptState, s) }

func (b *eventBridge) EmitScriptLog(entries []scripting.LogEntry) {
	if len(entries) == 0 {
		return
	}
	b.send(EventScriptLog, entries)
}
