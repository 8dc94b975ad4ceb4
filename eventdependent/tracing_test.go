package eventdependent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/notorious-go/eventgate/notify"
	"github.com/notorious-go/eventgate/notify/notifytest"
)

func TestAttemptSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { require.NoError(t, tp.Shutdown(t.Context())) }()

	var src notify.Emitter
	g, err := New(&src, notify.Pair{Success: "ready", Failure: "error"}, WithTracerProvider(tp))
	require.NoError(t, err)

	fired := notifytest.EmitWhenListening(t, &src, "error", nil)
	require.Error(t, g.Wait(t.Context()))
	<-fired
	fired = notifytest.EmitWhenListening(t, &src, "ready", nil)
	require.NoError(t, g.Wait(t.Context()))
	<-fired
	// Ungated calls do not start attempts, hence no spans.
	require.NoError(t, g.Wait(t.Context()))

	spans := sr.Ended()
	require.Len(t, spans, 2)

	failed, succeeded := spans[0], spans[1]
	assert.Equal(t, "eventgate.attempt", failed.Name())
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Attributes(), attribute.String("eventgate.outcome", OutcomeFailure))
	assert.Contains(t, failed.Attributes(), attribute.String("eventgate.signal.failure", "error"))
	require.Len(t, failed.Events(), 1)
	assert.Equal(t, "exception", failed.Events()[0].Name)

	assert.Equal(t, codes.Unset, succeeded.Status().Code)
	assert.Contains(t, succeeded.Attributes(), attribute.String("eventgate.outcome", OutcomeSuccess))
	assert.Contains(t, succeeded.Attributes(), attribute.String("eventgate.signal.success", "ready"))
}
