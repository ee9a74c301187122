package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTieBreakWinner(t *testing.T) {
	assert.Equal(t, PeerID("a1"), TieBreakWinner("a1", "b2"))
	assert.Equal(t, PeerID("a1"), TieBreakWinner("b2", "a1"))
	assert.Equal(t, PeerID("a1"), TieBreakWinner("a1", "a1"))
}

func TestTieBreakSymmetric(t *testing.T) {
	pairs := [][2]PeerID{
		{"a1", "b2"},
		{"zz", "za"},
		{"conn-0001", "conn-0002"},
	}
	for _, p := range pairs {
		assert.Equal(t, TieBreakWinner(p[0], p[1]), TieBreakWinner(p[1], p[0]))
	}
}

func TestReconcileRole(t *testing.T) {
	assert.Equal(t, RoleInitiator, ReconcileRole(true))
	assert.Equal(t, RoleResponder, ReconcileRole(false))
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "initiator", RoleInitiator.String())
	assert.Equal(t, "responder", RoleResponder.String())
	assert.Equal(t, "unassigned", RoleUnassigned.String())
}
