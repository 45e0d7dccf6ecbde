package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstruments_Disabled(t *testing.T) {
	m, err := New(context.Background(), Config{Enabled: false}, "embedgate")
	require.NoError(t, err)

	in, err := NewInstruments(m)
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		in.GateDecision(ctx, "authorized")
		in.TokenIssued(ctx, true)
		in.RelayRequest(ctx, "sub_resource", "substituted")
		in.UpstreamDuration(ctx, "primary_document", 12.5)
	})

	var nilInstruments *Instruments
	assert.NotPanics(t, func() { nilInstruments.RelayRequest(ctx, "x", "y") })
	assert.NotNil(t, NoopInstruments())
}
