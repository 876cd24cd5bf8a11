package chat

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/compozy/transcripts/pkg/logger"
)

const (
	StateReceived       = "received"
	StateRateChecked    = "rate_checked"
	StateQuotaChecked   = "quota_checked"
	StateQueryRewritten = "query_rewritten"
	StateRetrieved      = "retrieved"
	StateStreaming      = "streaming"
	StateDone           = "done"
	StateError          = "error"
	StateRejected       = "rejected"
)

const (
	eventRateOK    = "rate_ok"
	eventQuotaOK   = "quota_ok"
	eventRewritten = "rewritten"
	eventRetrieved = "retrieved"
	eventStream    = "stream"
	eventComplete  = "complete"
	eventFail      = "fail"
	eventReject    = "reject"
)

func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		StateReceived,
		fsm.Events{
			{Name: eventRateOK, Src: []string{StateReceived}, Dst: StateRateChecked},
			{Name: eventQuotaOK, Src: []string{StateRateChecked}, Dst: StateQuotaChecked},
			{Name: eventRewritten, Src: []string{StateQuotaChecked}, Dst: StateQueryRewritten},
			{Name: eventRetrieved, Src: []string{StateQueryRewritten}, Dst: StateRetrieved},
			{Name: eventStream, Src: []string{StateRetrieved}, Dst: StateStreaming},
			{Name: eventComplete, Src: []string{StateStreaming}, Dst: StateDone},
			{Name: eventReject, Src: []string{StateReceived, StateRateChecked}, Dst: StateRejected},
			{
				Name: eventFail,
				Src:  []string{StateQuotaChecked, StateQueryRewritten, StateRetrieved, StateStreaming},
				Dst:  StateError,
			},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				logger.FromContext(ctx).Debug("Chat session transition", "from", e.Src, "to", e.Dst, "event", e.Event)
			},
		},
	)
}

// transition advances the session machine. It runs even after the caller
// cancelled, so cancelled streams still end in StateError. Invalid
// transitions are programming errors and are only logged.
func (s *Session) transition(ctx context.Context, event string) {
	if err := s.machine.Event(context.WithoutCancel(ctx), event); err != nil {
		logger.FromContext(ctx).Error("Invalid chat session transition",
			"event", event, "state", s.machine.Current(), "error", err)
	}
}
