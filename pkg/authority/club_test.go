package authority

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vctt94/econcore/pkg/rake"
)

func TestNewClubSeedsOwnerAsMember(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	require.True(t, c.Active)
	require.True(t, c.Members["owner"])
}

func TestRegistryRoleOfOwnerManagerMemberNone(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Managers["mgr"] = true
	c.Members["plyr"] = true

	r := NewRegistry()
	r.Put(c)

	require.Equal(t, RoleOwner, r.RoleOf("c1", "owner"))
	require.Equal(t, RoleManager, r.RoleOf("c1", "mgr"))
	require.Equal(t, RolePlayer, r.RoleOf("c1", "plyr"))
	require.Equal(t, RoleNone, r.RoleOf("c1", "stranger"))
}

func TestRegistryRoleOfUnknownClubIsNone(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, RoleNone, r.RoleOf("missing", "anyone"))
}

func TestRegistryIsBanned(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Banned["bad"] = true

	r := NewRegistry()
	r.Put(c)

	require.True(t, r.IsBanned("c1", "bad"))
	require.False(t, r.IsBanned("c1", "owner"))
	require.False(t, r.IsBanned("missing", "bad"))
}

func TestRoleSatisfies(t *testing.T) {
	require.True(t, RoleOwner.satisfies(RoleManager))
	require.True(t, RoleManager.satisfies(RoleManager))
	require.False(t, RolePlayer.satisfies(RoleManager))
	require.True(t, RoleNone.satisfies(RoleNone))
}

func TestInviteThenAcceptAdmitsMember(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.Invite("c1", "p1"))
	require.Equal(t, RoleNone, r.RoleOf("c1", "p1"))

	require.True(t, r.AcceptInvite("c1", "p1"))
	require.Equal(t, RolePlayer, r.RoleOf("c1", "p1"))
	require.False(t, c.Invited["p1"])
}

func TestInviteRefusesExistingMemberOrBanned(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Members["plyr"] = true
	c.Banned["bad"] = true
	r := NewRegistry()
	r.Put(c)

	require.False(t, r.Invite("c1", "plyr"))
	require.False(t, r.Invite("c1", "bad"))
}

func TestAcceptInviteRefusesWithoutPendingInvitation(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	r := NewRegistry()
	r.Put(c)

	require.False(t, r.AcceptInvite("c1", "stranger"))
}

func TestRemoveMemberDropsMembershipAndManagerRole(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Managers["mgr"] = true
	c.Members["mgr"] = true
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.RemoveMember("c1", "mgr"))
	require.Equal(t, RoleNone, r.RoleOf("c1", "mgr"))
}

func TestBanThenUnbanRequiresFreshInvite(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Members["plyr"] = true
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.Ban("c1", "plyr"))
	require.True(t, r.IsBanned("c1", "plyr"))
	require.Equal(t, RoleNone, r.RoleOf("c1", "plyr"))

	require.True(t, r.Unban("c1", "plyr"))
	require.False(t, r.IsBanned("c1", "plyr"))
	require.Equal(t, RoleNone, r.RoleOf("c1", "plyr")) // unban does not restore membership

	require.True(t, r.Invite("c1", "plyr"))
	require.True(t, r.AcceptInvite("c1", "plyr"))
	require.Equal(t, RolePlayer, r.RoleOf("c1", "plyr"))
}

func TestPromoteThenDemote(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Members["plyr"] = true
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.Promote("c1", "plyr"))
	require.Equal(t, RoleManager, r.RoleOf("c1", "plyr"))

	require.True(t, r.Demote("c1", "plyr"))
	require.Equal(t, RolePlayer, r.RoleOf("c1", "plyr"))
}

func TestTransferOwnershipKeepsOldOwnerAsManager(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	c.Members["plyr"] = true
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.TransferOwnership("c1", "owner", "plyr"))
	require.Equal(t, RoleOwner, r.RoleOf("c1", "plyr"))
	require.Equal(t, RoleManager, r.RoleOf("c1", "owner"))
}

func TestTransferOwnershipRefusesNonMemberTarget(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	r := NewRegistry()
	r.Put(c)

	require.False(t, r.TransferOwnership("c1", "owner", "stranger"))
}

func TestUpdateConfigAndSetActive(t *testing.T) {
	c := NewClub("c1", "owner", 10, 1000, rake.Config{})
	r := NewRegistry()
	r.Put(c)

	require.True(t, r.UpdateConfig("c1", 20, 2000))
	require.Equal(t, int64(20), c.MinBuyIn)
	require.Equal(t, int64(2000), c.MaxBuyIn)

	require.True(t, r.SetActive("c1", false))
	require.False(t, c.Active)
}
