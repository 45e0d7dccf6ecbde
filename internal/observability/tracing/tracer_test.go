package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracer_Disabled(t *testing.T) {
	ctx := context.Background()
	tr, err := New(ctx, Config{Enabled: false, ServiceName: "embedgate"})
	require.NoError(t, err)

	spanCtx, span := tr.Start(ctx, "relay")
	defer span.End()

	assert.NotNil(t, spanCtx)
	assert.False(t, span.SpanContext().IsSampled())
	assert.NoError(t, tr.Shutdown(ctx))
}
