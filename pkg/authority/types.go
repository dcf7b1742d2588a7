// Package authority implements the Table Authority (spec §4.10): the single
// externally facing surface that authorizes and then performs every
// economy-touching mutation, emits one auditable event per mutation (allowed
// or denied), and owns the table lifecycle state machine and the rake-policy
// freeze that holds for the duration of an active hand.
package authority

import "github.com/vctt94/econcore/pkg/econtypes"

// Role is a club membership role. Higher roles satisfy lower role
// requirements (OWNER can do anything MANAGER or PLAYER can).
type Role int

const (
	RoleNone Role = iota
	RolePlayer
	RoleManager
	RoleOwner
)

func (r Role) satisfies(min Role) bool { return r >= min }

// Action is the fixed action enumeration of spec §6.
type Action string

const (
	ActionCreateClub        Action = "create_club"
	ActionUpdateClubConfig  Action = "update_club_config"
	ActionUpdateRakePolicy  Action = "update_rake_policy"
	ActionDeleteClub        Action = "delete_club"
	ActionInviteMember      Action = "invite_member"
	ActionAcceptInvitation  Action = "accept_invitation"
	ActionRemoveMember      Action = "remove_member"
	ActionBanMember         Action = "ban_member"
	ActionUnbanMember       Action = "unban_member"
	ActionPromoteToManager  Action = "promote_to_manager"
	ActionDemoteFromManager Action = "demote_from_manager"
	ActionTransferOwnership Action = "transfer_ownership"
	ActionCreateTable       Action = "create_table"
	ActionCloseTable        Action = "close_table"
	ActionPauseTable        Action = "pause_table"
	ActionResumeTable       Action = "resume_table"
	ActionJoinTable         Action = "join_table"
	ActionLeaveTable        Action = "leave_table"
	ActionBuyIn             Action = "buy_in"
	ActionCashOut           Action = "cash_out"
	ActionRebuy             Action = "rebuy"
	ActionTopUp             Action = "top_up"
	ActionKickPlayer        Action = "kick_player"
	ActionStartHand         Action = "start_hand"
	ActionForceAction       Action = "force_action"
)

// minRole is the role-based matrix of spec §4.10, abridged but complete for
// the action set this core enumerates.
var minRole = map[Action]Role{
	ActionCreateClub: RolePlayer,

	ActionUpdateClubConfig:  RoleOwner,
	ActionUpdateRakePolicy:  RoleOwner,
	ActionDeleteClub:        RoleOwner,
	ActionTransferOwnership: RoleOwner,
	ActionPromoteToManager:  RoleOwner,
	ActionDemoteFromManager: RoleOwner,

	ActionCreateTable:  RoleManager,
	ActionCloseTable:   RoleManager,
	ActionPauseTable:   RoleManager,
	ActionResumeTable:  RoleManager,
	ActionKickPlayer:   RoleManager,
	ActionStartHand:    RoleManager,
	ActionForceAction:  RoleManager,
	ActionInviteMember: RoleManager,
	ActionRemoveMember: RoleManager,
	ActionBanMember:    RoleManager,
	ActionUnbanMember:  RoleManager,

	ActionJoinTable:        RolePlayer,
	ActionLeaveTable:       RolePlayer,
	ActionBuyIn:            RolePlayer,
	ActionCashOut:          RolePlayer,
	ActionRebuy:            RolePlayer,
	ActionTopUp:            RolePlayer,
	ActionAcceptInvitation: RolePlayer,
}

// DenialReason is the fixed denial-reason enumeration of spec §7.
type DenialReason string

const (
	DenialNotClubMember        DenialReason = "NOT_CLUB_MEMBER"
	DenialInsufficientRole     DenialReason = "INSUFFICIENT_ROLE"
	DenialMemberBanned         DenialReason = "MEMBER_BANNED"
	DenialMemberLeft           DenialReason = "MEMBER_LEFT"
	DenialTableNotFound        DenialReason = "TABLE_NOT_FOUND"
	DenialTableClosed          DenialReason = "TABLE_CLOSED"
	DenialTablePaused          DenialReason = "TABLE_PAUSED"
	DenialHandInProgress       DenialReason = "HAND_IN_PROGRESS"
	DenialNoHandInProgress     DenialReason = "NO_HAND_IN_PROGRESS"
	DenialPlayerNotAtTable     DenialReason = "PLAYER_NOT_AT_TABLE"
	DenialPlayerAlreadyAtTable DenialReason = "PLAYER_ALREADY_AT_TABLE"
	DenialTableFull            DenialReason = "TABLE_FULL"
	DenialInsufficientBalance  DenialReason = "INSUFFICIENT_BALANCE"
	DenialBuyInBelowMinimum    DenialReason = "BUY_IN_BELOW_MINIMUM"
	DenialBuyInAboveMaximum    DenialReason = "BUY_IN_ABOVE_MAXIMUM"
	DenialRebuyNotAllowed      DenialReason = "REBUY_NOT_ALLOWED"
	DenialTopUpNotAllowed      DenialReason = "TOP_UP_NOT_ALLOWED"
	DenialRakePolicyLocked     DenialReason = "RAKE_POLICY_LOCKED"
	DenialCannotKickOwner      DenialReason = "CANNOT_KICK_OWNER"
	DenialCannotKickManager    DenialReason = "CANNOT_KICK_MANAGER"
	DenialCannotDemoteOwner    DenialReason = "CANNOT_DEMOTE_OWNER"
	DenialSelfActionNotAllowed DenialReason = "SELF_ACTION_NOT_ALLOWED"
	DenialInvalidTarget        DenialReason = "INVALID_TARGET"
	DenialClubNotActive        DenialReason = "CLUB_NOT_ACTIVE"
)

// AuthorizationContext is built fresh for every authority call from the Club
// Registry's view of the caller and the target table.
type AuthorizationContext struct {
	ClubID   econtypes.ClubID
	CallerID econtypes.PlayerID
	TargetID econtypes.PlayerID // empty when the action has no distinct target
	TableID  econtypes.TableID  // empty for club-level actions
	Action   Action
}

// AuthorizationResult is returned to the caller and embedded in the emitted
// event. RequestID lets a caller correlate the call with the event stream.
type AuthorizationResult struct {
	Allowed      bool
	DenialReason DenialReason
	RequestID    string
	CallerID     econtypes.PlayerID
	Action       Action
	Timestamp    int64
}
