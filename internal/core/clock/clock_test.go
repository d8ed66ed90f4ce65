package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, System{}.Now().Location())
}

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	f := NewFake(start)
	assert.Equal(t, start.UTC(), f.Now())
	assert.Equal(t, time.UTC, f.Now().Location())

	f.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour).UTC(), f.Now())

	f.Set(start)
	assert.Equal(t, start.UTC(), f.Now())
}
