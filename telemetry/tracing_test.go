package telemetry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestWithSpan_NoProvider(t *testing.T) {
	t.Run("Propagates the wrapped error", func(t *testing.T) {
		wantErr := errors.New("inner failure")
		err := WithSpan(context.Background(), "op", func(ctx context.Context) error {
			return wantErr
		}, attribute.String("k", "v"))
		assert.Equal(t, wantErr, err)
	})

	t.Run("Nil on success", func(t *testing.T) {
		called := false
		err := WithSpan(context.Background(), "op", func(ctx context.Context) error {
			called = true
			SetAttributes(ctx, attribute.Int("n", 1))
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})
}

func TestTracer_DefaultName(t *testing.T) {
	assert.NotNil(t, Tracer(""))
	assert.NotNil(t, Tracer("custom"))
}
