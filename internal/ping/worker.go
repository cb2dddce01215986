package ping

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTick        = time.Second
	DefaultTimeout     = 10 * time.Minute
	DefaultMailboxSize = 32
	DefaultSendTimeout = 5 * time.Second

	sendErrorLogInterval = time.Minute
	exhaustedText        = "The Ping Cannon is exhausted."
	announcePrefix       = "./ping "
)

var (
	ErrNoTargets     = errors.New("no users to ping")
	ErrWorkerStopped = errors.New("ping worker stopped")
)

// Sender delivers a text message to a channel.
type Sender interface {
	Send(ctx context.Context, channel ChannelID, text string) error
}

type Config struct {
	Tick        time.Duration
	Timeout     time.Duration
	MailboxSize int
	// DrainAll applies every queued message per tick instead of one.
	DrainAll    bool
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = DefaultTick
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = DefaultMailboxSize
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

type Option func(*Worker)

// WithClock replaces time.Now for deadline bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// Worker runs the Ping Cannon. Run owns the registry; every other goroutine
// talks to it through the mailbox.
type Worker struct {
	cfg     Config
	sender  Sender
	now     func() time.Time
	metrics *Metrics

	registry *Registry
	mailbox  chan Message
	done     chan struct{}

	viewMu sync.Mutex
	view   []Task

	lastSendErr time.Time
}

func NewWorker(sender Sender, cfg Config, opts ...Option) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{
		cfg:      cfg,
		sender:   sender,
		now:      time.Now,
		registry: NewRegistry(),
		mailbox:  make(chan Message, cfg.MailboxSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = NewMetrics()
	}
	return w
}

func (w *Worker) Metrics() *Metrics {
	return w.metrics
}

// Run executes the loop until ctx is cancelled. It must be called once.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.Tick)
	defer ticker.Stop()

	log.Info().Dur("tick", w.cfg.Tick).Dur("timeout", w.cfg.Timeout).Msg("ping worker started")
	for {
		w.step(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("ping worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// step is one tick: sweep, notify expired channels, announce, drain.
func (w *Worker) step(ctx context.Context) {
	expired := w.registry.Expire(w.now())
	for _, ch := range expired {
		w.metrics.Expired.Inc()
		log.Debug().Int64("channel", int64(ch)).Msg("ping cannon expired")
		w.send(ctx, ch, exhaustedText)
	}

	for _, t := range w.registry.Snapshot() {
		if len(t.Users) == 0 {
			continue
		}
		if w.send(ctx, t.Channel, announcePrefix+mentionList(t.Users)) {
			w.metrics.Announces.Inc()
		}
	}

	w.drain()
	w.publish()
}

func (w *Worker) drain() {
	for {
		select {
		case msg := <-w.mailbox:
			w.registry.apply(msg, w.now(), w.cfg.Timeout)
			w.metrics.Messages.WithLabelValues(messageKind(msg)).Inc()
			log.Debug().Int64("channel", int64(msg.channel())).Str("kind", messageKind(msg)).Msg("ping message applied")
			if !w.cfg.DrainAll {
				return
			}
		default:
			return
		}
	}
}

func (w *Worker) publish() {
	view := w.registry.Snapshot()
	w.metrics.ActiveCannons.Set(float64(len(view)))

	w.viewMu.Lock()
	w.view = view
	w.viewMu.Unlock()
}

func (w *Worker) send(ctx context.Context, ch ChannelID, text string) bool {
	sctx, cancel := context.WithTimeout(ctx, w.cfg.SendTimeout)
	defer cancel()

	if err := w.sender.Send(sctx, ch, text); err != nil {
		w.metrics.SendFailures.Inc()
		w.logSendError(ch, err)
		return false
	}
	return true
}

func (w *Worker) logSendError(ch ChannelID, err error) {
	now := w.now()
	if !w.lastSendErr.IsZero() && now.Sub(w.lastSendErr) < sendErrorLogInterval {
		return
	}
	w.lastSendErr = now
	log.Warn().Err(err).Int64("channel", int64(ch)).Msg("ping send failed")
}

// Tasks returns the registry as of the end of the last tick. The result is
// shared and must not be modified.
func (w *Worker) Tasks() []Task {
	w.viewMu.Lock()
	defer w.viewMu.Unlock()
	return w.view
}

// Task returns the channel's task as of the end of the last tick.
func (w *Worker) Task(ch ChannelID) (Task, bool) {
	for _, t := range w.Tasks() {
		if t.Channel == ch {
			return t, true
		}
	}
	return Task{}, false
}

// Commence queues a start, or extension, of the channel's cannon.
func (w *Worker) Commence(ctx context.Context, ch ChannelID, users UserSet) error {
	if len(users) == 0 {
		return ErrNoTargets
	}
	return w.enqueue(ctx, Commence{Channel: ch, Users: users.clone()})
}

// Remove queues removal of users from the channel's cannon.
func (w *Worker) Remove(ctx context.Context, ch ChannelID, users UserSet) error {
	if len(users) == 0 {
		return ErrNoTargets
	}
	return w.enqueue(ctx, Remove{Channel: ch, Users: users.clone()})
}

// Stop queues the end of the channel's cannon.
func (w *Worker) Stop(ctx context.Context, ch ChannelID) error {
	return w.enqueue(ctx, Stop{Channel: ch})
}

// enqueue blocks while the mailbox is full.
func (w *Worker) enqueue(ctx context.Context, msg Message) error {
	select {
	case <-w.done:
		return ErrWorkerStopped
	default:
	}

	select {
	case w.mailbox <- msg:
		return nil
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
