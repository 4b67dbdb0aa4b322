package events

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sink receives dispatched events. The email/PDF collaborator implements
// this; the default sink only logs, since delivery formatting is outside
// the ledger's scope.
type Sink interface {
	Deliver(ctx context.Context, record OutboxRecord) error
}

type logSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) Sink {
	return &logSink{log: log.Named("events.sink")}
}

func (s *logSink) Deliver(_ context.Context, record OutboxRecord) error {
	s.log.Info("outbox event dispatched",
		zap.String("type", record.Type),
		zap.String("dedupe_key", record.DedupeKey),
	)
	return nil
}

// Dispatcher drains the outbox on an interval.
type Dispatcher struct {
	db     *gorm.DB
	log    *zap.Logger
	outbox *Outbox
	sink   Sink

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewDispatcher(db *gorm.DB, log *zap.Logger, outbox *Outbox, sink Sink) *Dispatcher {
	return &Dispatcher{
		db:       db,
		log:      log.Named("events.dispatcher"),
		outbox:   outbox,
		sink:     sink,
		interval: 5 * time.Second,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go d.run()
}

func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.drainOnce(context.Background())
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) {
	batch, err := d.outbox.PendingBatch(ctx, d.db, 50)
	if err != nil {
		d.log.Warn("failed to read outbox batch", zap.Error(err))
		return
	}
	for _, record := range batch {
		if err := d.sink.Deliver(ctx, record); err != nil {
			d.log.Warn("outbox delivery failed",
				zap.String("dedupe_key", record.DedupeKey),
				zap.Error(err),
			)
			continue
		}
		if err := d.outbox.MarkDispatched(ctx, d.db, record.ID); err != nil {
			d.log.Warn("failed to mark outbox event dispatched", zap.Error(err))
		}
	}
}
