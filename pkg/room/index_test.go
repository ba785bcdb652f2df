package room

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindcare/realtime/pkg/model"
)

func TestCreatePairwise(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()

	req.NoError(ix.CreatePairwise("p1", "alice", "bob"))
	req.ErrorIs(ix.CreatePairwise("p1", "alice", "bob"), ErrAlreadyExists)
	req.ErrorIs(ix.CreatePairwise("p2", "alice", "alice"), ErrInvalidMembers)
	req.ErrorIs(ix.CreatePairwise("p3", "", "bob"), ErrInvalidMembers)

	snap, err := ix.Get("p1")
	req.NoError(err)
	req.Equal(model.KindOneToOne, snap.Kind)
	req.ElementsMatch([]string{"alice", "bob"}, snap.Participants)

	req.True(ix.Authorize("alice", "p1"))
	req.True(ix.Authorize("bob", "p1"))
	req.False(ix.Authorize("carol", "p1"))
}

func TestPairwiseMembershipImmutable(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.NoError(ix.CreatePairwise("p1", "alice", "bob"))

	req.ErrorIs(ix.AddParticipant("alice", "p1", "carol"), ErrPairwiseFixed)
	req.ErrorIs(ix.RemoveParticipant("alice", "p1", "bob"), ErrPairwiseFixed)
}

func TestGroupModeration(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.NoError(ix.CreateGroup("g1", "support circle", "mod", []string{"alice", "bob"}))

	req.True(ix.IsModerator("mod", "g1"))
	req.False(ix.IsModerator("alice", "g1"))

	// Only moderators mutate membership.
	req.ErrorIs(ix.AddParticipant("alice", "g1", "carol"), ErrNotModerator)
	req.NoError(ix.AddParticipant("mod", "g1", "carol"))
	req.True(ix.Authorize("carol", "g1"))

	req.ErrorIs(ix.RemoveParticipant("bob", "g1", "carol"), ErrNotModerator)
	req.NoError(ix.RemoveParticipant("mod", "g1", "carol"))
	req.False(ix.Authorize("carol", "g1"))
	req.ErrorIs(ix.RemoveParticipant("mod", "g1", "carol"), ErrNotAParticipant)
}

func TestGroupRequiresTwoMembers(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.ErrorIs(ix.CreateGroup("g1", "solo", "mod", nil), ErrInvalidMembers)
	req.NoError(ix.CreateGroup("g2", "pair", "mod", []string{"alice"}))
}

func TestGroupMembershipFloor(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.NoError(ix.CreateGroup("g1", "circle", "mod", []string{"alice", "bob"}))

	req.NoError(ix.RemoveParticipant("mod", "g1", "alice"))
	// Two members left: any further removal would orphan the room.
	req.ErrorIs(ix.RemoveParticipant("mod", "g1", "bob"), ErrInvalidMembers)
	req.True(ix.Authorize("bob", "g1"))

	// The sole moderator cannot remove themselves either.
	req.NoError(ix.CreateGroup("g2", "circle", "mod", []string{"alice", "bob"}))
	req.ErrorIs(ix.RemoveParticipant("mod", "g2", "mod"), ErrInvalidMembers)
	req.True(ix.IsModerator("mod", "g2"))
}

func TestCheckClassifiesRejections(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.NoError(ix.CreateGroup("g1", "circle", "mod", []string{"alice"}))

	req.ErrorIs(ix.Check("alice", "missing"), ErrNotFound)
	req.ErrorIs(ix.Check("stranger", "g1"), ErrNotAParticipant)
	req.NoError(ix.Check("alice", "g1"))

	req.NoError(ix.Close("g1"))
	req.ErrorIs(ix.Check("alice", "g1"), ErrClosed)
	req.False(ix.Authorize("alice", "g1"))
}

func TestRoomsFor(t *testing.T) {
	req := require.New(t)
	ix := NewIndex()
	req.NoError(ix.CreatePairwise("p1", "alice", "bob"))
	req.NoError(ix.CreateGroup("g1", "circle", "alice", []string{"carol"}))
	req.NoError(ix.CreateGroup("g2", "other", "bob", []string{"carol"}))

	req.ElementsMatch([]string{"p1", "g1"}, ix.RoomsFor("alice"))
	req.ElementsMatch([]string{"g1", "g2"}, ix.RoomsFor("carol"))

	req.NoError(ix.Close("g1"))
	req.ElementsMatch([]string{"p1"}, ix.RoomsFor("alice"))
}
