package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/internal/adapters/telemetry"
	"go.trai.ch/kbridge/internal/adapters/telemetry/progrock"
	"go.trai.ch/kbridge/internal/core/domain"
)

func TestNew_SelectsImplementation(t *testing.T) {
	cfg := domain.DefaultConfig()
	assert.IsType(t, &telemetry.NoOp{}, telemetry.New(cfg))

	cfg.Telemetry = true
	assert.IsType(t, &progrock.Recorder{}, telemetry.New(cfg))
}

func TestNoOp(t *testing.T) {
	tel := telemetry.NewNoOp()
	ctx := context.Background()

	got, v := tel.Record(ctx, "shapes.box")
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() {
		v.Log(domain.LogLevelInfo, "ignored")
		v.Cached()
		v.Complete(nil)
	})
	require.NoError(t, tel.Close())
}
