package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_DoublesAndCaps(t *testing.T) {
	b := newBackoff()

	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 8*time.Second, b.Next())
	assert.Equal(t, 16*time.Second, b.Next())
	assert.Equal(t, 30*time.Second, b.Next(), "capped at maxBackoff")
	assert.Equal(t, 30*time.Second, b.Next(), "stays capped")
}

func TestBackoff_ResetReturnsToMinimum(t *testing.T) {
	b := newBackoff()
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 1*time.Second, b.Next())
}
