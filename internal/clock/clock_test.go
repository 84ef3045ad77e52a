package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(t0)
	assert.Equal(t, t0, f.Now())

	f.Advance(15 * time.Minute)
	assert.Equal(t, t0.Add(15*time.Minute), f.Now())

	f.Set(t0)
	assert.Equal(t, t0, f.Now())
}

func TestRealIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
