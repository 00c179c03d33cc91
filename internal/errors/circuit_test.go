package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a circuit breaker with max 3 failures
	cb := NewCircuitBreaker("qdrant", WithMaxFailures(3), WithResetTimeout(time.Second))

	// When: recording 3 failures
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("down") }, nil)
	}

	// Then: circuit is open and requests are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// Given: an open circuit with a controllable clock
	now := time.Now()
	cb := NewCircuitBreaker("qdrant", WithMaxFailures(2), WithResetTimeout(time.Minute))
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("down") }, nil)
	}
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	now = now.Add(2 * time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	// Then: a successful probe closes the circuit
	err := cb.Execute(func() error { return nil }, nil)
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("qdrant", WithMaxFailures(2), WithResetTimeout(time.Minute))
	cb.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("down") }, nil)
	}
	now = now.Add(2 * time.Minute)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(func() error { return errors.New("still down") }, nil)

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	// Given: a breaker that only counts unavailability
	cb := NewCircuitBreaker("qdrant", WithMaxFailures(1))
	onlyUnavailable := func(err error) bool { return errors.Is(err, ErrVectorStoreUnavailable) }

	// When: an upsert rejection happens
	err := cb.Execute(func() error { return VectorStoreUpsert("bad payload", nil) }, onlyUnavailable)

	// Then: the error is returned but the circuit stays closed
	assert.ErrorIs(t, err, ErrVectorStoreUpsert)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
