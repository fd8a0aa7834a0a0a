package journal

import (
	"context"

	"github.com/imsglab/imsg/internal/bus"
	"github.com/imsglab/imsg/internal/send"
	"go.uber.org/zap"
)

// Recorder subscribes to delivery events and persists final outcomes.
type Recorder struct {
	journal *Journal
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewRecorder creates a recorder over the journal.
func NewRecorder(j *Journal, b *bus.Bus, logger *zap.Logger) *Recorder {
	return &Recorder{journal: j, bus: b, logger: logger}
}

// Start subscribes to send events on the bus.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("send.", 64)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the recorder.
func (r *Recorder) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Recorder) handle(evt bus.Event) {
	if evt.Kind != bus.KindSendDelivered && evt.Kind != bus.KindSendFailed {
		return
	}
	out, ok := evt.Payload.(*send.Outcome)
	if !ok {
		return
	}
	if err := r.journal.Record(out); err != nil {
		r.logger.Error("failed to record delivery outcome",
			zap.Error(err), zap.String("request_id", out.RequestID))
	}
}
