// Package notify delivers outbound account messages off the request path.
//
// A Dispatcher implements libauth.Notifier on a bounded queue. Worker
// goroutines hand queued messages to a Sender: KafkaSender publishes them
// for the mail service, LogSender writes them to zap for local setups.
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/libauth"
	"github.com/MrEthical07/libauth/internal/logger"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned by EnqueuePasswordReset when the buffer has no room.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("notify: dispatcher closed")
)

// Sender delivers one message. It may block; the Dispatcher bounds each
// call with Config.SendTimeout.
type Sender interface {
	SendPasswordReset(ctx context.Context, msg libauth.PasswordResetMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg libauth.PasswordResetMessage) error

// SendPasswordReset implements Sender.
func (f SenderFunc) SendPasswordReset(ctx context.Context, msg libauth.PasswordResetMessage) error {
	return f(ctx, msg)
}

// Config controls the dispatcher queue.
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// DefaultConfig returns a single worker on a 256 slot queue.
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		Workers:     1,
		SendTimeout: 10 * time.Second,
	}
}

// Dispatcher queues messages and delivers them from worker goroutines.
type Dispatcher struct {
	cfg    Config
	sender Sender
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan libauth.PasswordResetMessage
	wg     sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

var _ libauth.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts cfg.Workers workers feeding sender.
func NewDispatcher(cfg Config, sender Sender, log *zap.Logger) *Dispatcher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:    cfg,
		sender: sender,
		logger: log.Named("notify"),
		queue:  make(chan libauth.PasswordResetMessage, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}
	return d
}

// EnqueuePasswordReset implements libauth.Notifier. It never waits for room.
func (d *Dispatcher) EnqueuePasswordReset(ctx context.Context, msg libauth.PasswordResetMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.dropped.Add(1)
		logger.WithContext(ctx, d.logger).Warn("password reset message dropped",
			zap.String("to", logger.MaskEmail(msg.To)),
			zap.Int("queue_size", d.cfg.QueueSize),
		)
		return ErrQueueFull
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg libauth.PasswordResetMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.SendPasswordReset(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error("password reset delivery failed",
			zap.String("to", logger.MaskEmail(msg.To)),
			zap.Error(err),
		)
		return
	}
	d.sent.Add(1)
}

// Close stops accepting messages, delivers what is queued and waits for the
// workers. It does not close the Sender.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

// Sent returns the number of messages the Sender accepted.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// Failed returns the number of messages the Sender rejected.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

// Dropped returns the number of messages refused because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }
