package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kubereflector/controller/pkg/annotations"
)

func qn(ns, name string) annotations.QN {
	return annotations.QN{Namespace: ns, Name: name}
}

func TestCircuitBreaker_AllowRequest_Closed(t *testing.T) {
	cb := NewWithDefaults()

	assert.True(t, cb.AllowRequest("Secret", qn("ns-dst", "name")))
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenSuccessThreshold: 1})
	mirror := qn("ns-dst", "name")
	testErr := errors.New("patch failed")

	state, justOpened := cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateClosed, state)
	assert.False(t, justOpened)

	state, justOpened = cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateClosed, state)
	assert.False(t, justOpened)

	state, justOpened = cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateOpen, state)
	assert.True(t, justOpened)

	assert.False(t, cb.AllowRequest("Secret", mirror))
}

func TestCircuitBreaker_ResetOnSuccess(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, ResetTimeout: time.Minute, HalfOpenSuccessThreshold: 1})
	mirror := qn("ns-dst", "name")
	testErr := errors.New("patch failed")

	cb.RecordFailure("Secret", mirror, testErr)
	cb.RecordFailure("Secret", mirror, testErr)
	cb.RecordSuccess("Secret", mirror)

	// The two prior failures were cleared by the success, so it takes a
	// fresh run of FailureThreshold failures to open the circuit.
	state, justOpened := cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateClosed, state)
	assert.False(t, justOpened)

	state, justOpened = cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateClosed, state)
	assert.False(t, justOpened)
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond, HalfOpenSuccessThreshold: 2})
	mirror := qn("ns-dst", "name")
	testErr := errors.New("patch failed")

	cb.RecordFailure("Secret", mirror, testErr)
	cb.RecordFailure("Secret", mirror, testErr)
	assert.False(t, cb.AllowRequest("Secret", mirror))

	time.Sleep(150 * time.Millisecond)

	assert.True(t, cb.AllowRequest("Secret", mirror), "ResetTimeout elapsed, breaker tests recovery")

	assert.Equal(t, StateHalfOpen, cb.RecordSuccess("Secret", mirror))
	assert.Equal(t, StateClosed, cb.RecordSuccess("Secret", mirror))
}

func TestCircuitBreaker_HalfOpenFailure(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond, HalfOpenSuccessThreshold: 2})
	mirror := qn("ns-dst", "name")
	testErr := errors.New("patch failed")

	cb.RecordFailure("Secret", mirror, testErr)
	cb.RecordFailure("Secret", mirror, testErr)

	time.Sleep(150 * time.Millisecond)

	assert.True(t, cb.AllowRequest("Secret", mirror))

	state, justOpened := cb.RecordFailure("Secret", mirror, testErr)
	assert.Equal(t, StateOpen, state)
	assert.True(t, justOpened)
	assert.False(t, cb.AllowRequest("Secret", mirror))
}

func TestCircuitBreaker_KindDisambiguatesSharedQN(t *testing.T) {
	cb := NewWithDefaults()
	testErr := errors.New("patch failed")
	shared := qn("ns-dst", "name")

	for i := 0; i < 5; i++ {
		cb.RecordFailure("Secret", shared, testErr)
	}

	assert.False(t, cb.AllowRequest("Secret", shared))
	assert.True(t, cb.AllowRequest("ConfigMap", shared), "same QN, different kind, independent breaker")
}

func TestCircuitBreaker_IndependentMirrors(t *testing.T) {
	cb := NewWithDefaults()
	testErr := errors.New("patch failed")

	for i := 0; i < 5; i++ {
		cb.RecordFailure("Secret", qn("ns-dst", "mirror1"), testErr)
	}

	assert.False(t, cb.AllowRequest("Secret", qn("ns-dst", "mirror1")))
	assert.True(t, cb.AllowRequest("Secret", qn("ns-dst", "mirror2")))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
