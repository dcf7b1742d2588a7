package authority

// Engine is the Authorization Engine: a pure decision function from an
// AuthorizationContext plus the live Club/Table state to allow/deny. It
// never mutates anything — Authority only invokes the underlying economy
// operation after Engine returns allowed.
type Engine struct {
	registry *Registry
}

// NewEngine creates an Authorization Engine bound to a club registry.
func NewEngine(registry *Registry) *Engine {
	return &Engine{registry: registry}
}

// decision is the allow/deny outcome before it is stamped with request
// metadata and timestamp by the caller.
type decision struct {
	allowed bool
	reason  DenialReason
}

func allow() decision { return decision{allowed: true} }

func deny(reason DenialReason) decision { return decision{allowed: false, reason: reason} }

// Authorize runs the role check and the action-specific precondition checks
// of spec §4.10. table may be nil for club-level actions.
func (e *Engine) Authorize(ctx AuthorizationContext, club *Club, table *Table) decision {
	if club == nil {
		return deny(DenialNotClubMember)
	}
	if !club.Active {
		return deny(DenialClubNotActive)
	}
	if e.registry.IsBanned(ctx.ClubID, ctx.CallerID) {
		return deny(DenialMemberBanned)
	}

	role := e.registry.RoleOf(ctx.ClubID, ctx.CallerID)
	if role == RoleNone {
		return deny(DenialNotClubMember)
	}

	min, known := minRole[ctx.Action]
	if known && !role.satisfies(min) {
		return deny(DenialInsufficientRole)
	}

	if d := checkTargetProtections(e.registry, ctx, role); !d.allowed {
		return d
	}

	if d := checkTablePreconditions(ctx, table); !d.allowed {
		return d
	}

	return allow()
}

// checkTargetProtections enforces: managers may not remove/ban/kick other
// managers; nobody may remove/ban/kick/demote an owner; self-only actions
// reject a caller acting on someone else.
func checkTargetProtections(registry *Registry, ctx AuthorizationContext, callerRole Role) decision {
	selfOnly := map[Action]bool{
		ActionJoinTable: true, ActionLeaveTable: true, ActionBuyIn: true,
		ActionCashOut: true, ActionRebuy: true, ActionTopUp: true,
		ActionAcceptInvitation: true,
	}
	if selfOnly[ctx.Action] && ctx.TargetID != "" && ctx.TargetID != ctx.CallerID {
		return deny(DenialSelfActionNotAllowed)
	}

	protective := map[Action]bool{
		ActionKickPlayer: true, ActionRemoveMember: true, ActionBanMember: true,
	}
	if protective[ctx.Action] && ctx.TargetID != "" {
		targetRole := registry.RoleOf(ctx.ClubID, ctx.TargetID)
		if targetRole == RoleOwner {
			return deny(DenialCannotKickOwner)
		}
		if targetRole == RoleManager && callerRole < RoleOwner {
			return deny(DenialCannotKickManager)
		}
	}

	if ctx.Action == ActionDemoteFromManager && ctx.TargetID != "" {
		if registry.RoleOf(ctx.ClubID, ctx.TargetID) == RoleOwner {
			return deny(DenialCannotDemoteOwner)
		}
	}

	return allow()
}

// checkTablePreconditions enforces the hand-lifecycle and table-lifecycle
// preconditions of spec §4.10 for every table-scoped action.
func checkTablePreconditions(ctx AuthorizationContext, table *Table) decision {
	tableScoped := map[Action]bool{
		ActionCloseTable: true, ActionPauseTable: true, ActionResumeTable: true,
		ActionJoinTable: true, ActionLeaveTable: true, ActionBuyIn: true,
		ActionCashOut: true, ActionRebuy: true, ActionTopUp: true,
		ActionKickPlayer: true, ActionStartHand: true, ActionForceAction: true,
	}
	if !tableScoped[ctx.Action] {
		return allow()
	}
	if table == nil {
		return deny(DenialTableNotFound)
	}

	status := table.Status()
	if status == "closed" {
		return deny(DenialTableClosed)
	}

	handInProgressDenied := map[Action]bool{
		ActionLeaveTable: true, ActionCashOut: true, ActionRebuy: true,
		ActionStartHand: true,
	}
	if handInProgressDenied[ctx.Action] && table.CurrentHandID != "" {
		return deny(DenialHandInProgress)
	}

	switch ctx.Action {
	case ActionJoinTable:
		if status == "paused" {
			return deny(DenialTablePaused)
		}
		if table.Seats[ctx.CallerID] {
			return deny(DenialPlayerAlreadyAtTable)
		}
		if len(table.Seats) >= table.MaxSeats {
			return deny(DenialTableFull)
		}
	case ActionLeaveTable, ActionBuyIn, ActionCashOut, ActionRebuy, ActionTopUp:
		if !table.Seats[ctx.CallerID] {
			return deny(DenialPlayerNotAtTable)
		}
	}

	return allow()
}
