package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker that opens after 2 failures
	cb := NewCircuitBreaker("openai", WithMaxFailures(2))
	fail := func() error { return errors.New("down") }

	// When: two calls fail
	_ = cb.Execute(fail)
	_ = cb.Execute(fail)

	// Then: the next call is rejected without running
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeCloses(t *testing.T) {
	// Given: an open breaker with a controllable clock
	now := time.Now()
	cb := NewCircuitBreaker("gemini", WithMaxFailures(1), WithResetTimeout(time.Second))
	cb.now = func() time.Time { return now }
	_ = cb.Execute(func() error { return errors.New("down") })
	assert.Equal(t, StateOpen, cb.State())

	// When: the reset timeout passes and the probe succeeds
	now = now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())
	err := cb.Execute(func() error { return nil })

	// Then: the circuit closes again
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_FailureFilter(t *testing.T) {
	// Given: a breaker that only counts fatal errors
	cb := NewCircuitBreaker("openai", WithMaxFailures(1), WithFailureFilter(IsFatal))

	// When: a per-item error occurs
	_ = cb.Execute(func() error { return New(ErrCodeMalformedResponse, "bad json", nil) })

	// Then: the circuit stays closed
	assert.Equal(t, StateClosed, cb.State())

	// When: a fatal error occurs
	_ = cb.Execute(func() error { return New(ErrCodeInvalidCredentials, "401", nil) })

	// Then: the circuit opens
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker("x", WithMaxFailures(1))
	_ = cb.Execute(func() error { return errors.New("down") })

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, "closed", cb.State().String())
}
