package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracingNoneIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "meetscribe-test", TracingConfig{Exporter: "none"})
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "noop")
	EndSpan(span, errors.New("ignored"))
	assert.False(t, span.SpanContext().IsValid())

	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), "meetscribe-test", TracingConfig{Exporter: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" authorization = Bearer x ,broken, =empty,k=v")
	assert.Equal(t, map[string]string{"authorization": "Bearer x", "k": "v"}, got)
}
