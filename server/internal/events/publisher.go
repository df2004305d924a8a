package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/config"
	"github.com/surgecast/surgecast/server/internal/metrics"
	"github.com/surgecast/surgecast/server/internal/retry"
)

const (
	// TypeBriefingPublished is the only event type emitted today.
	TypeBriefingPublished = "briefing.published"

	writeTimeout = 10 * time.Second
)

// Event is the JSON value of every Kafka message.
type Event struct {
	Type        string          `json:"type"`
	PublishedAt time.Time       `json:"published_at"`
	Briefing    *types.Briefing `json:"briefing"`
}

// messageWriter is the subset of *kafka.Writer the publisher uses.
// Abstracted so tests can inject an in-memory writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher buffers briefings and writes them to Kafka.
type Publisher struct {
	w       messageWriter
	buf     chan *types.Briefing
	metrics *metrics.Metrics
	now     func() time.Time
	backoff func() *retry.Backoff
}

// New creates a Publisher writing to cfg.Topic on cfg.Brokers.
func New(cfg config.EventsConfig, m *metrics.Metrics) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: writeTimeout,
	}
	return newPublisher(w, cfg.BufferSize, m)
}

func newPublisher(w messageWriter, size int, m *metrics.Metrics) *Publisher {
	if size <= 0 {
		size = 1
	}
	return &Publisher{
		w:       w,
		buf:     make(chan *types.Briefing, size),
		metrics: m,
		now:     time.Now,
		backoff: func() *retry.Backoff { return retry.New(retry.DefaultInitial, retry.DefaultMax) },
	}
}

// Ship enqueues b. If the buffer is full the oldest entry is evicted to make
// room. Ship has the store.Listener signature and never blocks.
func (p *Publisher) Ship(b *types.Briefing) {
	for {
		select {
		case p.buf <- b:
			return
		default:
		}
		select {
		case old := <-p.buf:
			p.metrics.EventDropped()
			slog.Warn("events: buffer full, evicted oldest briefing",
				"hospital", old.HospitalID, "briefing", old.ID, "buffer_cap", cap(p.buf))
		default:
		}
	}
}

// Pending returns the number of buffered briefings.
func (p *Publisher) Pending() int {
	return len(p.buf)
}

// Run drains the buffer until ctx is cancelled. A failed write is retried
// with backoff; briefings that cannot be encoded or that the broker rejects
// permanently are discarded.
func (p *Publisher) Run(ctx context.Context) {
	bo := p.backoff()
	for {
		var b *types.Briefing
		select {
		case <-ctx.Done():
			return
		case b = <-p.buf:
		}

		msg, err := p.message(b)
		if err != nil {
			slog.Error("events: encode failed, discarding briefing", "briefing", b.ID, "err", err)
			continue
		}

		for {
			err := p.write(ctx, msg)
			if err == nil {
				bo.Reset()
				p.metrics.EventPublished()
				slog.Debug("events: briefing published", "hospital", b.HospitalID, "briefing", b.ID)
				break
			}
			if ctx.Err() != nil {
				return
			}
			if isPermanent(err) {
				p.metrics.EventDropped()
				slog.Error("events: permanent write error, discarding briefing",
					"hospital", b.HospitalID, "briefing", b.ID, "err", err)
				break
			}
			wait := bo.Next()
			slog.Warn("events: write failed, will retry",
				"hospital", b.HospitalID, "err", err, "retry_in", wait)
			if retry.Sleep(ctx, wait) != nil {
				return
			}
		}
	}
}

func (p *Publisher) write(ctx context.Context, msg kafka.Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return p.w.WriteMessages(ctx, msg)
}

func (p *Publisher) message(b *types.Briefing) (kafka.Message, error) {
	value, err := json.Marshal(Event{
		Type:        TypeBriefingPublished,
		PublishedAt: p.now().UTC(),
		Briefing:    b,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(b.HospitalID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeBriefingPublished)},
		},
	}, nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// isPermanent reports whether the broker rejected the message itself.
func isPermanent(err error) bool {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return !kerr.Temporary()
	}
	return false
}
