package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	err := WrapValidation(ErrInvalidConfig, "BandpassFilter", "Reconfigure", "cutoff check")
	require.Error(t, err)

	assert.True(t, stderrors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "BandpassFilter.Reconfigure")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, ClassValidation, ce.Class)
	assert.Equal(t, "BandpassFilter", ce.Stage)
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
	assert.NoError(t, WrapValidation(nil, "a", "b", "c"))
	assert.NoError(t, WrapFatal(nil, "a", "b", "c"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"classified fatal", WrapFatal(fmt.Errorf("boom"), "engine", "Run", "loop"), ClassFatal},
		{"classified driver", WrapDriver(ErrDriverTimeout, "action", "deliver", "post"), ClassDriver},
		{"sentinel validation", ErrCyclicGraph, ClassValidation},
		{"sentinel fatal", ErrResourceExhausted, ClassFatal},
		{"unknown defaults to processing", fmt.Errorf("surprise"), ClassProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(ErrDriverTimeout))
	assert.True(t, IsTransient(fmt.Errorf("connection refused")))
	assert.False(t, IsTransient(ErrInvalidConfig))
	assert.False(t, IsTransient(nil))
	// Fatal never retried even if the message pattern-matches.
	assert.False(t, IsTransient(WrapFatal(fmt.Errorf("connection pool exhausted"), "e", "r", "a")))
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "validation", ClassValidation.String())
	assert.Equal(t, "processing", ClassProcessing.String())
	assert.Equal(t, "driver", ClassDriver.String())
	assert.Equal(t, "fatal", ClassFatal.String())
	assert.Equal(t, "unknown", Class(42).String())
}

func TestRetryPolicyBridge(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	cfg := p.ToRetryConfig()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
