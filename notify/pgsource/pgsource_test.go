package pgsource_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notorious-go/eventgate/eventdependent"
	"github.com/notorious-go/eventgate/gate"
	"github.com/notorious-go/eventgate/notify"
	"github.com/notorious-go/eventgate/notify/notifytest"
	"github.com/notorious-go/eventgate/notify/pgsource"
)

// newSource connects to EVENTGATE_PG_DSN and skips the test when it is unset
// or the database does not answer.
func newSource(t *testing.T, configure ...func(*pgsource.Config)) *pgsource.Source {
	t.Helper()
	dsn := os.Getenv("EVENTGATE_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: EVENTGATE_PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("Skipping PostgreSQL integration test: %v", err)
	}

	// Channel names are identifiers, so keep them short and lower case.
	prefix := "eventgate_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_"
	config := pgsource.Config{Pool: pool, Prefix: prefix}
	for _, f := range configure {
		f(&config)
	}
	src, err := pgsource.New(config)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, src.Close()) })
	return src
}

func TestConfigValidate(t *testing.T) {
	err := pgsource.Config{}.Validate()
	assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)

	_, err = pgsource.New(pgsource.Config{})
	assert.True(t, errors.Is(err, errors.NotValid), "got %v", err)
}

func TestOnce(t *testing.T) {
	src := newSource(t)
	got := make(chan any, 2)
	_, err := src.Once("ready", func(payload any) { got <- payload })
	require.NoError(t, err)
	assert.Equal(t, 1, src.ListenerCount("ready"))

	require.NoError(t, src.Notify(t.Context(), "ready", "first"))
	select {
	case payload := <-got:
		assert.Equal(t, "first", payload)
	case <-time.After(notifytest.LongWait):
		t.Fatal("handler not called")
	}
	notifytest.EventuallyNoListeners(t, src, "ready")

	require.NoError(t, src.Notify(t.Context(), "ready", "second"))
	select {
	case payload := <-got:
		t.Fatalf("handler called twice, second time with %v", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOff(t *testing.T) {
	src := newSource(t)
	id, err := src.Once("ready", func(any) { t.Error("removed listener fired") })
	require.NoError(t, err)

	require.NoError(t, src.Off("error", id))
	assert.Equal(t, 1, src.ListenerCount("ready"))
	require.NoError(t, src.Off("ready", id))
	notifytest.CheckNoListeners(t, src, "ready")

	require.NoError(t, src.Notify(t.Context(), "ready", "late"))
	time.Sleep(50 * time.Millisecond)
}

func TestGate(t *testing.T) {
	src := newSource(t)
	fired := notifytest.WhenListening(t, src, "ready", func() {
		assert.NoError(t, src.Notify(context.Background(), "ready", "migrated"))
	})

	ctx, cancel := context.WithTimeout(t.Context(), notifytest.LongWait)
	defer cancel()
	require.NoError(t, gate.Await(ctx, src, "ready", "error"))
	<-fired
	notifytest.EventuallyNoListeners(t, src, "ready", "error")
}

func TestWrappedOperationsTimeout(t *testing.T) {
	src := newSource(t)
	g, err := eventdependent.New(src, notify.Pair{Success: "ready", Failure: "error"}, eventdependent.WithTimeout(100*time.Millisecond))
	require.NoError(t, err)
	query := g.Wrap("query", func(context.Context, ...any) (any, error) { return 1, nil })

	_, err = query(t.Context())
	assert.True(t, eventdependent.IsTimeout(err), "got %v", err)
	assert.EqualError(t, err, "ready didn't fire after 100ms")
	notifytest.EventuallyNoListeners(t, src, "ready", "error")
}

func TestMaxListeners(t *testing.T) {
	src := newSource(t, func(c *pgsource.Config) { c.MaxListeners = 1 })
	id, err := src.Once("ready", func(any) {})
	require.NoError(t, err)

	_, err = src.Once("error", func(any) {})
	assert.True(t, errors.Is(err, errors.QuotaLimitExceeded), "got %v", err)
	assert.Zero(t, src.ListenerCount("error"))

	// The slot frees up once the first listener has let go of its connection.
	require.NoError(t, src.Off("ready", id))
	deadline := time.Now().Add(notifytest.LongWait)
	for {
		id, err = src.Once("error", func(any) {})
		if err == nil {
			break
		}
		require.True(t, errors.Is(err, errors.QuotaLimitExceeded), "got %v", err)
		require.True(t, time.Now().Before(deadline), "slot never freed")
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, src.Off("error", id))
}
