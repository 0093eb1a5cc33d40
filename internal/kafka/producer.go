package kafka

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrProducerClosed = errors.New("kafka producer closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes through a buffered inbox drained by one goroutine.
// Publishing is fire-and-forget: write errors are logged, not returned.
// A Publish that returned nil is always written before the loop exits.
type Producer struct {
	w       messageWriter
	topic   string
	inbox   chan kafka.Message
	stop    chan struct{}
	closeCh chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup // Publish calls past the closed check
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true, // fire-and-forget untuk throughput; error di-log lewat Completion
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Printf("[kafka] async write topic=%s n=%d: %v", topic, len(msgs), err)
			}
		},
	}
	return newProducer(w, topic, buf)
}

func newProducer(w messageWriter, topic string, buf int) *Producer {
	if buf <= 0 {
		buf = 256
	}
	return &Producer{
		w:       w,
		topic:   topic,
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

// NewSyncWriter returns a writer whose WriteMessages waits for all replicas.
// Used where the caller must know whether the broker took the message.
func NewSyncWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.Close()
				p.settle()
				return
			case <-p.stop:
				p.settle()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// settle keeps writing until every accepted Publish has enqueued, then
// drains what is left.
func (p *Producer) settle() {
	idle := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(idle)
	}()
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		case <-idle:
			p.drain()
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		log.Printf("[kafka] write topic=%s key=%s: %v", p.topic, m.Key, err)
	}
}

// drain flush sisa pesan di inbox lalu tutup writer.
func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				log.Printf("[kafka] close writer topic=%s: %v", p.topic, err)
			}
			return
		}
	}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	m := kafka.Message{Key: key, Value: value, Time: time.Now()}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the loop flushes what is queued and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.stop)
	}
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
