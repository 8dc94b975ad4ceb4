// Package redissource adapts Redis PUB/SUB to notify.Source.
//
// Every listener owns a dedicated subscription to prefix+signal. Once does not
// return until Redis has confirmed the subscription, so a message published
// after Once returns is never missed. The first message delivered ends the
// subscription and runs the handler with the message payload string.
package redissource

import (
	"context"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/redis/go-redis/v9"

	"github.com/notorious-go/eventgate/internal/semaphore"
	"github.com/notorious-go/eventgate/notify"
)

var logger = loggo.GetLogger("eventgate.notify.redissource")

// DefaultSubscribeTimeout bounds how long Once waits for Redis to confirm a
// subscription.
const DefaultSubscribeTimeout = 5 * time.Second

// Logger is the logging the source needs. loggo.Logger satisfies it.
type Logger interface {
	Tracef(string, ...interface{})
	Warningf(string, ...interface{})
}

// Config holds the dependencies and settings of a Source.
type Config struct {
	Client redis.UniversalClient
	// Prefix is prepended to every signal name to form the channel.
	Prefix string
	// SubscribeTimeout defaults to DefaultSubscribeTimeout.
	SubscribeTimeout time.Duration
	// MaxListeners caps how many listeners may hold a subscription at once. Once
	// fails with a QuotaLimitExceeded error beyond it. Zero means no cap.
	MaxListeners int
	// Logger defaults to the package logger.
	Logger Logger
}

// Validate checks that the config can be used to build a Source.
func (c Config) Validate() error {
	if c.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if c.SubscribeTimeout < 0 {
		return errors.NotValidf("negative SubscribeTimeout %v", c.SubscribeTimeout)
	}
	if c.MaxListeners < 0 {
		return errors.NotValidf("negative MaxListeners %d", c.MaxListeners)
	}
	return nil
}

// Source is a notify.Source over Redis PUB/SUB.
type Source struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  Logger
	slots   semaphore.Semaphore

	mu        sync.Mutex
	last      notify.ListenerID
	listeners map[notify.ListenerID]*listener
	wg        sync.WaitGroup
}

type listener struct {
	signal string
	ps     *redis.PubSub
}

var _ interface {
	notify.Source
	notify.Counter
} = (*Source)(nil)

// New returns a Source for the configured client.
func New(config Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.SubscribeTimeout == 0 {
		config.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return &Source{
		client:    config.Client,
		prefix:    config.Prefix,
		timeout:   config.SubscribeTimeout,
		logger:    config.Logger,
		slots:     semaphore.New(config.MaxListeners),
		listeners: make(map[notify.ListenerID]*listener),
	}, nil
}

// Channel returns the Redis channel a signal is delivered on.
func (s *Source) Channel(signal string) string {
	return s.prefix + signal
}

// Once implements notify.Source.
func (s *Source) Once(signal string, fn notify.Handler) (notify.ListenerID, error) {
	if fn == nil {
		return 0, errors.NotValidf("nil handler for signal %q", signal)
	}
	channel := s.Channel(signal)
	if !s.slots.TryAcquire() {
		return 0, errors.QuotaLimitExceededf("listener on %q: %v", channel, s.slots)
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ps := s.client.Subscribe(ctx, channel)
	// The first reply is the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		s.slots.Release()
		return 0, errors.Annotatef(err, "subscribing to %q", channel)
	}

	s.mu.Lock()
	s.last++
	id := s.last
	s.listeners[id] = &listener{signal: signal, ps: ps}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.receive(id, channel, ps, fn)
	s.logger.Tracef("listener %d subscribed to %q", id, channel)
	return id, nil
}

func (s *Source) receive(id notify.ListenerID, channel string, ps *redis.PubSub, fn notify.Handler) {
	defer s.wg.Done()
	defer s.slots.Release()
	msg, err := ps.ReceiveMessage(context.Background())
	if err != nil {
		// Off closes the subscription, which also lands here.
		if s.take(id) {
			s.logger.Warningf("listener %d lost subscription to %q: %v", id, channel, err)
		}
		return
	}
	if s.take(id) {
		s.logger.Tracef("%q fired listener %d", channel, id)
		fn(msg.Payload)
	}
}

// take removes the listener and closes its subscription. It reports whether
// the listener was still registered.
func (s *Source) take(id notify.ListenerID) bool {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if ok {
		_ = l.ps.Close()
	}
	return ok
}

// Off implements notify.Source.
func (s *Source) Off(signal string, id notify.ListenerID) error {
	s.mu.Lock()
	l, ok := s.listeners[id]
	s.mu.Unlock()
	if ok && l.signal == signal {
		s.take(id)
	}
	return nil
}

// ListenerCount implements notify.Counter.
func (s *Source) ListenerCount(signal string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listeners {
		if l.signal == signal {
			n++
		}
	}
	return n
}

// Publish fires signal with payload and returns how many subscribers
// received it.
func (s *Source) Publish(ctx context.Context, signal, payload string) (int64, error) {
	n, err := s.client.Publish(ctx, s.Channel(signal), payload).Result()
	return n, errors.Annotatef(err, "publishing %q", s.Channel(signal))
}

// Close drops every listener and waits for their receivers to exit. The
// client is left open.
func (s *Source) Close() error {
	s.mu.Lock()
	ids := make([]notify.ListenerID, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.take(id)
	}
	s.wg.Wait()
	return nil
}
