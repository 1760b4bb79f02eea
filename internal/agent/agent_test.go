package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleKnown(t *testing.T) {
	for _, r := range Roles {
		assert.True(t, r.Known(), r)
	}
	assert.False(t, Role("Night Owl").Known())
}

func TestProcessString(t *testing.T) {
	assert.Equal(t, "sequential", Sequential.String())
	assert.Equal(t, "hierarchical", Hierarchical.String())
}
