// Package pgsource adapts PostgreSQL LISTEN/NOTIFY to notify.Source.
//
// Every listener holds a pooled connection that has executed LISTEN on
// prefix+signal. The first notification on that channel runs the handler with
// the notification payload string; the connection then runs UNLISTEN and goes
// back to the pool. Size the pool for the number of gates waiting at once.
package pgsource

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/notorious-go/eventgate/internal/semaphore"
	"github.com/notorious-go/eventgate/notify"
)

var logger = loggo.GetLogger("eventgate.notify.pgsource")

// DefaultListenTimeout bounds acquiring a connection and running LISTEN, and
// separately running UNLISTEN when a listener ends.
const DefaultListenTimeout = 5 * time.Second

// Logger is the logging the source needs. loggo.Logger satisfies it.
type Logger interface {
	Tracef(string, ...interface{})
	Warningf(string, ...interface{})
}

// Config holds the dependencies and settings of a Source.
type Config struct {
	Pool *pgxpool.Pool
	// Prefix is prepended to every signal name to form the channel.
	Prefix string
	// ListenTimeout defaults to DefaultListenTimeout.
	ListenTimeout time.Duration
	// MaxListeners caps how many listeners may hold a connection at once. Once
	// fails with a QuotaLimitExceeded error beyond it. Zero means no cap.
	MaxListeners int
	// Logger defaults to the package logger.
	Logger Logger
}

// Validate checks that the config can be used to build a Source.
func (c Config) Validate() error {
	if c.Pool == nil {
		return errors.NotValidf("nil Pool")
	}
	if c.ListenTimeout < 0 {
		return errors.NotValidf("negative ListenTimeout %v", c.ListenTimeout)
	}
	if c.MaxListeners < 0 {
		return errors.NotValidf("negative MaxListeners %d", c.MaxListeners)
	}
	return nil
}

// Source is a notify.Source over PostgreSQL LISTEN/NOTIFY.
type Source struct {
	pool    *pgxpool.Pool
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
	cancel context.CancelFunc
}

var _ interface {
	notify.Source
	notify.Counter
} = (*Source)(nil)

// New returns a Source listening on connections from the configured pool.
func New(config Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.ListenTimeout == 0 {
		config.ListenTimeout = DefaultListenTimeout
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return &Source{
		pool:      config.Pool,
		prefix:    config.Prefix,
		timeout:   config.ListenTimeout,
		logger:    config.Logger,
		slots:     semaphore.New(config.MaxListeners),
		listeners: make(map[notify.ListenerID]*listener),
	}, nil
}

// Channel returns the notification channel a signal is delivered on.
func (s *Source) Channel(signal string) string {
	return s.prefix + signal
}

// Once implements notify.Source. It returns after LISTEN has completed.
func (s *Source) Once(signal string, fn notify.Handler) (notify.ListenerID, error) {
	if fn == nil {
		return 0, errors.NotValidf("nil handler for signal %q", signal)
	}
	channel := s.Channel(signal)
	if !s.slots.TryAcquire() {
		return 0, errors.QuotaLimitExceededf("listener on %q: %v", channel, s.slots)
	}
	conn, err := s.listen(channel)
	if err != nil {
		s.slots.Release()
		return 0, errors.Annotatef(err, "listening on %q", channel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.last++
	id := s.last
	s.listeners[id] = &listener{signal: signal, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	go s.wait(ctx, id, channel, conn, fn)
	s.logger.Tracef("listener %d listening on %q", id, channel)
	return id, nil
}

func (s *Source) listen(channel string) (*pgxpool.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, errors.Trace(err)
	}
	return conn, nil
}

func (s *Source) wait(ctx context.Context, id notify.ListenerID, channel string, conn *pgxpool.Conn, fn notify.Handler) {
	defer s.wg.Done()
	defer s.slots.Release()
	n, err := conn.Conn().WaitForNotification(ctx)
	s.release(channel, conn)
	if err != nil {
		// Off cancels ctx, which also lands here.
		if s.take(id) {
			s.logger.Warningf("listener %d lost its connection listening on %q: %v", id, channel, err)
		}
		return
	}
	if s.take(id) {
		s.logger.Tracef("%q fired listener %d", channel, id)
		fn(n.Payload)
	}
}

// release stops listening and returns conn to the pool. A connection that
// cannot UNLISTEN is closed so the pool discards it.
func (s *Source) release(channel string, conn *pgxpool.Conn) {
	defer conn.Release()
	if conn.Conn().IsClosed() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := conn.Exec(ctx, "UNLISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		s.logger.Warningf("unlistening on %q: %v", channel, err)
		_ = conn.Conn().Close(ctx)
	}
}

// take removes the listener and stops its wait. It reports whether the
// listener was still registered.
func (s *Source) take(id notify.ListenerID) bool {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if ok {
		l.cancel()
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

// Notify fires signal with payload through pg_notify.
func (s *Source) Notify(ctx context.Context, signal, payload string) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", s.Channel(signal), payload)
	return errors.Annotatef(err, "notifying %q", s.Channel(signal))
}

// Close drops every listener and waits for their connections to go back to
// the pool. The pool is left open.
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
