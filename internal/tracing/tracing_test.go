package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raysh454/auditai/internal/testutil"
	"github.com/raysh454/auditai/internal/tracing"
)

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	tp, shutdown, err := tracing.Init(context.Background(), tracing.Config{}, &testutil.DummyLogger{})
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer shutdown(context.Background())

	_, span := tracing.StartSpan(context.Background(), tracing.Tracer("test"), "op", attribute.String("k", "v"))
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}
