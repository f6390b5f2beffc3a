package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/fluxnode/pkg/api"
)

// Store persists trace entries. The stores in internal/persistence
// implement it.
type Store interface {
	AppendTraces(ctx context.Context, entries []api.TraceEntry) error
}

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
	writeTimeout         = 5 * time.Second
)

// BufferedSink queues entries in a bounded channel and writes them to a
// Store from a background goroutine. Record never blocks: when the queue is
// full the entry is dropped and counted.
type BufferedSink struct {
	store         Store
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration

	queue   chan api.TraceEntry
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	dropped   atomic.Int64
	failed    atomic.Int64
}

var _ api.Telemetry = (*BufferedSink)(nil)

// BufferOption configures a BufferedSink.
type BufferOption func(*BufferedSink)

// WithBufferSize sets the queue capacity. Default 1024.
func WithBufferSize(n int) BufferOption {
	return func(s *BufferedSink) {
		if n > 0 {
			s.queue = make(chan api.TraceEntry, n)
		}
	}
}

// WithBatchSize sets how many entries are written per store call.
func WithBatchSize(n int) BufferOption {
	return func(s *BufferedSink) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithFlushInterval sets how often a partial batch is written.
func WithFlushInterval(d time.Duration) BufferOption {
	return func(s *BufferedSink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithSinkLogger sets the logger for dropped entries and write errors.
func WithSinkLogger(l *zap.Logger) BufferOption {
	return func(s *BufferedSink) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewBufferedSink starts the background writer. Call Close to stop it.
func NewBufferedSink(store Store, opts ...BufferOption) *BufferedSink {
	s := &BufferedSink{
		store:         store,
		logger:        zap.L(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		queue:         make(chan api.TraceEntry, defaultBufferSize),
		flushes:       make(chan chan struct{}),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

func (s *BufferedSink) Record(entry api.TraceEntry) {
	if s.closed.Load() {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- entry:
	default:
		s.dropped.Add(1)
		s.logger.Warn("trace buffer full; dropping entry",
			zap.String("task_id", entry.TaskID),
			zap.Int("capacity", cap(s.queue)),
		)
	}
}

// Flush blocks until every entry queued before the call has been handed to
// the store.
func (s *BufferedSink) Flush() {
	if s.closed.Load() {
		return
	}
	ack := make(chan struct{})
	select {
	case s.flushes <- ack:
		<-ack
	case <-s.stopped:
	}
}

// Close writes what is queued and stops the background writer.
func (s *BufferedSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		<-s.stopped
	})
	return nil
}

// Dropped returns how many entries were discarded because the queue was
// full or the sink closed.
func (s *BufferedSink) Dropped() int64 { return s.dropped.Load() }

// Failed returns how many entries the store rejected.
func (s *BufferedSink) Failed() int64 { return s.failed.Load() }

func (s *BufferedSink) loop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]api.TraceEntry, 0, s.batchSize)
	write := func() {
		if len(batch) == 0 {
			return
		}
		s.write(batch)
		batch = make([]api.TraceEntry, 0, s.batchSize)
	}
	drain := func() {
		for {
			select {
			case e := <-s.queue:
				batch = append(batch, e)
				if len(batch) >= s.batchSize {
					write()
				}
			default:
				write()
				return
			}
		}
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				write()
			}
		case <-ticker.C:
			write()
		case ack := <-s.flushes:
			drain()
			close(ack)
		case <-s.done:
			drain()
			return
		}
	}
}

func (s *BufferedSink) write(batch []api.TraceEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.AppendTraces(ctx, batch); err != nil {
		s.failed.Add(int64(len(batch)))
		s.logger.Error("failed to persist traces",
			zap.Int("count", len(batch)),
			zap.Error(err),
		)
	}
}
