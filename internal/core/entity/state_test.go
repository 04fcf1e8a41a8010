package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "Detached", Detached.String())
	assert.Equal(t, "Added", Added.String())
	assert.Equal(t, "Unchanged", Unchanged.String())
	assert.Equal(t, "Modified", Modified.String())
	assert.Equal(t, "Deleted", Deleted.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func TestStatePending(t *testing.T) {
	assert.False(t, Detached.Pending())
	assert.False(t, Unchanged.Pending())
	assert.True(t, Added.Pending())
	assert.True(t, Modified.Pending())
	assert.True(t, Deleted.Pending())
}
