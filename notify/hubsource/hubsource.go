// Package hubsource adapts a juju pubsub SimpleHub to notify.Source, so that
// topics published on a hub can gate operations.
//
// Each Once call holds its own hub subscription, which is unsubscribed as soon
// as its first message is handled or the listener is removed with Off. The hub
// delivers to each subscriber on its own goroutine, so handlers run there.
package hubsource

import (
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/pubsub/v2"

	"github.com/notorious-go/eventgate/notify"
)

var logger = loggo.GetLogger("eventgate.notify.hubsource")

// Logger is the logging the source needs. loggo.Logger satisfies it.
type Logger interface {
	Tracef(string, ...interface{})
}

// Config holds the dependencies of a Source.
type Config struct {
	Hub *pubsub.SimpleHub
	// Logger defaults to the package logger.
	Logger Logger
}

// Validate checks that the config can be used to build a Source.
func (c Config) Validate() error {
	if c.Hub == nil {
		return errors.NotValidf("nil Hub")
	}
	return nil
}

// Source is a notify.Source over a *pubsub.SimpleHub. Signal names are topics.
type Source struct {
	hub    *pubsub.SimpleHub
	logger Logger

	mu        sync.Mutex
	last      notify.ListenerID
	listeners map[notify.ListenerID]*listener
}

type listener struct {
	topic string
	unsub func()
}

var _ interface {
	notify.Source
	notify.Counter
} = (*Source)(nil)

// New returns a Source subscribing on the configured hub.
func New(config Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if config.Logger == nil {
		config.Logger = logger
	}
	return &Source{
		hub:       config.Hub,
		logger:    config.Logger,
		listeners: make(map[notify.ListenerID]*listener),
	}, nil
}

// Once implements notify.Source. The payload passed to fn is the data the
// message was published with.
func (s *Source) Once(topic string, fn notify.Handler) (notify.ListenerID, error) {
	if fn == nil {
		return 0, errors.NotValidf("nil handler for topic %q", topic)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	id := s.last
	l := &listener{topic: topic}
	s.listeners[id] = l
	// The hub may deliver before Subscribe returns; the handler then blocks on
	// s.mu until unsub is set.
	l.unsub = s.hub.Subscribe(topic, func(_ string, data interface{}) {
		if s.take(id) {
			logger.Tracef("%q fired listener %d", topic, id)
			fn(data)
		}
	})
	return id, nil
}

// take removes the listener and unsubscribes it from the hub. It reports
// whether the listener was still registered.
func (s *Source) take(id notify.ListenerID) bool {
	s.mu.Lock()
	l, ok := s.listeners[id]
	delete(s.listeners, id)
	s.mu.Unlock()
	if ok {
		l.unsub()
	}
	return ok
}

// Off implements notify.Source.
func (s *Source) Off(topic string, id notify.ListenerID) error {
	s.mu.Lock()
	l, ok := s.listeners[id]
	s.mu.Unlock()
	if !ok || l.topic != topic {
		return nil
	}
	s.take(id)
	return nil
}

// ListenerCount implements notify.Counter.
func (s *Source) ListenerCount(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.listeners {
		if l.topic == topic {
			n++
		}
	}
	return n
}
