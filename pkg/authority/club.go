package authority

import (
	"sync"

	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/rake"
)

// Club is the club-level membership and configuration record the
// Authorization Engine consults. It is the narrow stand-in this core keeps
// for the out-of-scope Club Registry (spec §1 lists recharge reference
// registries and dashboard RBAC as out of scope, but club membership itself
// is load-bearing for §4.10's role matrix, so it is kept here).
type Club struct {
	ClubID   econtypes.ClubID
	OwnerID  econtypes.PlayerID
	Active   bool
	MinBuyIn int64
	MaxBuyIn int64
	RakeCfg  rake.Config

	Managers map[econtypes.PlayerID]bool
	Members  map[econtypes.PlayerID]bool
	Banned   map[econtypes.PlayerID]bool
	Invited  map[econtypes.PlayerID]bool
}

// NewClub creates a club with ownerID already a Member (implicitly highest
// role; Registry.RoleOf special-cases the owner so it need not also appear
// in Managers).
func NewClub(clubID econtypes.ClubID, ownerID econtypes.PlayerID, minBuyIn, maxBuyIn int64, cfg rake.Config) *Club {
	return &Club{
		ClubID:   clubID,
		OwnerID:  ownerID,
		Active:   true,
		MinBuyIn: minBuyIn,
		MaxBuyIn: maxBuyIn,
		RakeCfg:  cfg,
		Managers: make(map[econtypes.PlayerID]bool),
		Members:  map[econtypes.PlayerID]bool{ownerID: true},
		Banned:   make(map[econtypes.PlayerID]bool),
		Invited:  make(map[econtypes.PlayerID]bool),
	}
}

// Registry is the in-memory club membership store. It is its own
// single-writer actor per the concurrency model (§5): exactly one mutex
// serializes every membership mutation.
type Registry struct {
	mu    sync.Mutex
	clubs map[econtypes.ClubID]*Club
}

// NewRegistry creates an empty club registry.
func NewRegistry() *Registry {
	return &Registry{clubs: make(map[econtypes.ClubID]*Club)}
}

// Put registers or replaces a club.
func (r *Registry) Put(c *Club) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clubs[c.ClubID] = c
}

// Get returns the club, if present.
func (r *Registry) Get(clubID econtypes.ClubID) (*Club, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	return c, ok
}

// RoleOf returns the caller's role within the club. A club that does not
// exist, or a caller who is not a member, both resolve to RoleNone — the
// Authorization Engine turns that into DenialNotClubMember.
func (r *Registry) RoleOf(clubID econtypes.ClubID, player econtypes.PlayerID) Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clubs[clubID]
	if !ok {
		return RoleNone
	}
	if player == c.OwnerID {
		return RoleOwner
	}
	if c.Managers[player] {
		return RoleManager
	}
	if c.Members[player] {
		return RolePlayer
	}
	return RoleNone
}

// IsBanned reports whether player is banned from clubID.
func (r *Registry) IsBanned(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	return ok && c.Banned[player]
}

// Invite records a pending invitation for player, refusing one for a club
// that does not exist, a player who is already a member, or a player who is
// banned.
func (r *Registry) Invite(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || c.Members[player] || c.Banned[player] {
		return false
	}
	c.Invited[player] = true
	return true
}

// AcceptInvite consumes a pending invitation and admits player as a Member.
func (r *Registry) AcceptInvite(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Invited[player] {
		return false
	}
	delete(c.Invited, player)
	c.Members[player] = true
	return true
}

// RemoveMember drops player from the club's membership and manager set.
// Caller-side protections (cannot remove an owner or, for a manager caller,
// another manager) are enforced by the Authorization Engine before this runs.
func (r *Registry) RemoveMember(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Members[player] {
		return false
	}
	delete(c.Members, player)
	delete(c.Managers, player)
	return true
}

// Ban removes player from membership/management and adds them to the ban
// list, refusing future invites and re-joins until Unban.
func (r *Registry) Ban(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok {
		return false
	}
	delete(c.Members, player)
	delete(c.Managers, player)
	delete(c.Invited, player)
	c.Banned[player] = true
	return true
}

// Unban clears player from the ban list without restoring membership — they
// need a fresh invitation to rejoin.
func (r *Registry) Unban(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Banned[player] {
		return false
	}
	delete(c.Banned, player)
	return true
}

// Promote raises an existing Member to Manager.
func (r *Registry) Promote(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Members[player] || c.Managers[player] {
		return false
	}
	c.Managers[player] = true
	return true
}

// Demote lowers a Manager back to a plain Member.
func (r *Registry) Demote(clubID econtypes.ClubID, player econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Managers[player] {
		return false
	}
	delete(c.Managers, player)
	return true
}

// TransferOwnership hands clubID's ownership to newOwner, who must already be
// a member. The outgoing owner is kept on as a Manager rather than dropped to
// a plain Member.
func (r *Registry) TransferOwnership(clubID econtypes.ClubID, currentOwner, newOwner econtypes.PlayerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok || !c.Members[newOwner] {
		return false
	}
	c.OwnerID = newOwner
	c.Managers[currentOwner] = true
	delete(c.Managers, newOwner)
	return true
}

// UpdateConfig replaces a club's buy-in bounds (used by update_club_config).
// The rake configuration is left unchanged: update_rake_policy goes through
// Authority.UpdateRakePolicy, which also enforces the frozen-policy guard.
func (r *Registry) UpdateConfig(clubID econtypes.ClubID, minBuyIn, maxBuyIn int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok {
		return false
	}
	c.MinBuyIn = minBuyIn
	c.MaxBuyIn = maxBuyIn
	return true
}

// SetActive flips a club's active flag — delete_club deactivates rather than
// erasing the record, since settlement history and the membership roster
// must survive for audit purposes after deletion.
func (r *Registry) SetActive(clubID econtypes.ClubID, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clubs[clubID]
	if !ok {
		return false
	}
	c.Active = active
	return true
}
