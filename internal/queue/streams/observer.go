package streams

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/internal/research"
)

// StreamObserver publishes research progress events to a Redis stream.
// Publish failures are logged and never interrupt the run.
type StreamObserver struct {
	publisher *Publisher
	stream    string
	maxLen    int64
	timeout   time.Duration
	logger    logrus.FieldLogger
}

func NewStreamObserver(publisher *Publisher, stream string, maxLen int64, logger logrus.FieldLogger) *StreamObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &StreamObserver{
		publisher: publisher,
		stream:    stream,
		maxLen:    maxLen,
		timeout:   2 * time.Second,
		logger:    logger,
	}
}

func (o *StreamObserver) OnEvent(ctx context.Context, ev research.Event) {
	// the run context may already be cancelled when the failure event fires
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	if _, err := o.publisher.PublishRaw(pctx, o.stream, EventStage, ev.RunID, ev, WithMaxLenApprox(o.maxLen)); err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"run_id": ev.RunID,
			"stage":  ev.Stage.String(),
		}).Warn("publish progress event")
	}
}

// DecodeEvent extracts the research event carried by a stage envelope.
func DecodeEvent(env Envelope) (research.Event, error) {
	var ev research.Event
	err := env.Decode(&ev)
	return ev, err
}
