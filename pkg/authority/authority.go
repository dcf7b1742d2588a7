package authority

import (
	"fmt"
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/balance"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/escrow"
	"github.com/vctt94/econcore/pkg/ledger"
	"github.com/vctt94/econcore/pkg/rake"
	"github.com/vctt94/econcore/pkg/settlement"
	"github.com/vctt94/econcore/pkg/sidepot"
)

// Authority is the Table Authority: the only entry point external callers
// use to touch Balance/Escrow/Settlement state. Each action method builds an
// AuthorizationContext, runs it through Engine, and only on allow invokes
// the underlying operation — on deny it emits authorization_denied and
// touches nothing else. CreateClub and AcceptInvitation apply their own
// narrower checks instead of Engine, and SettleHandAndEndHand performs no
// authorization check.
type Authority struct {
	log   slog.Logger
	clock econtypes.Clock

	registry *Registry
	engine   *Engine
	bus      *Bus

	balances  *balance.Keeper
	escrows   *escrow.Keeper
	ledgr     *ledger.Ledger
	settleEng *settlement.Engine

	mu      sync.Mutex
	tables  map[econtypes.TableID]*Table
	seq     int64
}

// New wires an Authority over its collaborators.
func New(log slog.Logger, clock econtypes.Clock, registry *Registry, bus *Bus,
	balances *balance.Keeper, escrows *escrow.Keeper, ledgr *ledger.Ledger, settleEng *settlement.Engine) *Authority {
	return &Authority{
		log:       log,
		clock:     clock,
		registry:  registry,
		engine:    NewEngine(registry),
		bus:       bus,
		balances:  balances,
		escrows:   escrows,
		ledgr:     ledgr,
		settleEng: settleEng,
		tables:    make(map[econtypes.TableID]*Table),
	}
}

func (a *Authority) requestID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	return fmt.Sprintf("req-%d", a.seq)
}

func (a *Authority) getTable(tableID econtypes.TableID) *Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tables[tableID]
}

// authorize is the shared preamble every public method runs: build the
// context, decide, and emit authorization_denied on deny. It returns the
// decision and the stamped AuthorizationResult so the caller only needs to
// branch once.
func (a *Authority) authorize(ctx AuthorizationContext) (decision, AuthorizationResult) {
	now := a.clock.NowMillis()
	club, _ := a.registry.Get(ctx.ClubID)
	table := a.getTable(ctx.TableID)

	d := a.engine.Authorize(ctx, club, table)
	result := AuthorizationResult{
		Allowed:      d.allowed,
		DenialReason: d.reason,
		RequestID:    a.requestID(),
		CallerID:     ctx.CallerID,
		Action:       ctx.Action,
		Timestamp:    now,
	}
	if !d.allowed {
		a.bus.Publish(Event{
			EventID:   result.RequestID,
			Type:      EventAuthorizationDenied,
			ClubID:    ctx.ClubID,
			TableID:   ctx.TableID,
			ActorID:   ctx.CallerID,
			TargetID:  ctx.TargetID,
			Data:      map[string]interface{}{"action": string(ctx.Action), "reason": string(d.reason)},
			Timestamp: now,
		})
	}
	return d, result
}

func (a *Authority) emit(eventType EventType, ctx AuthorizationContext, data map[string]interface{}) {
	a.bus.Publish(Event{
		EventID:   a.requestID(),
		Type:      eventType,
		ClubID:    ctx.ClubID,
		TableID:   ctx.TableID,
		ActorID:   ctx.CallerID,
		TargetID:  ctx.TargetID,
		Data:      data,
		Timestamp: a.clock.NowMillis(),
	})
}

// CreateTable opens a new table under clubID, owned operationally by
// callerID (who must be at least MANAGER).
func (a *Authority) CreateTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, maxSeats, minToStart int) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionCreateTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	now := a.clock.NowMillis()
	t := NewTable(tableID, clubID, callerID, maxSeats, minToStart, now)

	a.mu.Lock()
	a.tables[tableID] = t
	a.mu.Unlock()

	ctx.TableID = tableID
	a.emit(EventTableCreated, ctx, nil)
	return result, nil
}

// JoinTable seats callerID at tableID.
func (a *Authority) JoinTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionJoinTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	table := a.getTable(tableID)
	table.mu.Lock()
	table.Seats[callerID] = true
	table.mu.Unlock()

	a.emit(EventPlayerJoinedTable, ctx, nil)
	return result, nil
}

// LeaveTable removes callerID from tableID and force-cashes-out their
// escrow (spec §9 Open Question 3: forced cash-outs still emit ledger
// entries and authority events; only a no-escrow re-entrancy suppresses the
// error).
func (a *Authority) LeaveTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionLeaveTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if _, ok := a.escrows.Get(tableID, callerID); ok {
		amount, err := a.escrows.CashOut(tableID, callerID, nil)
		if err != nil {
			return result, err
		}
		if amount > 0 {
			a.ledgr.RecordCashOut(tableID, "", callerID, amount)
		}
	}

	table := a.getTable(tableID)
	table.mu.Lock()
	delete(table.Seats, callerID)
	table.mu.Unlock()

	a.emit(EventPlayerLeftTable, ctx, nil)
	return result, nil
}

// KickPlayer is the manager-driven equivalent of LeaveTable.
func (a *Authority) KickPlayer(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, TableID: tableID, Action: ActionKickPlayer}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if _, ok := a.escrows.Get(tableID, targetID); ok {
		amount, err := a.escrows.CashOut(tableID, targetID, nil)
		if err != nil {
			return result, err
		}
		if amount > 0 {
			a.ledgr.RecordCashOut(tableID, "", targetID, amount)
		}
	}

	table := a.getTable(tableID)
	table.mu.Lock()
	delete(table.Seats, targetID)
	table.mu.Unlock()

	a.emit(EventPlayerKickedTable, ctx, nil)
	return result, nil
}

// BuyIn validates against the club's configured min/max buy-in before
// delegating to the Escrow Keeper.
func (a *Authority) BuyIn(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, amount int64) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionBuyIn}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	club, _ := a.registry.Get(clubID)
	if amount < club.MinBuyIn {
		result.Allowed = false
		result.DenialReason = DenialBuyInBelowMinimum
		a.emit(EventAuthorizationDenied, ctx, map[string]interface{}{"reason": string(DenialBuyInBelowMinimum)})
		return result, nil
	}
	if amount > club.MaxBuyIn {
		result.Allowed = false
		result.DenialReason = DenialBuyInAboveMaximum
		a.emit(EventAuthorizationDenied, ctx, map[string]interface{}{"reason": string(DenialBuyInAboveMaximum)})
		return result, nil
	}

	if err := a.escrows.BuyIn(tableID, callerID, amount); err != nil {
		return result, err
	}
	a.ledgr.RecordBuyIn(tableID, "", callerID, amount)

	a.emit(EventPlayerBoughtIn, ctx, map[string]interface{}{"amount": amount})
	return result, nil
}

// CashOut delegates to the Escrow Keeper and records the ledger entry.
func (a *Authority) CashOut(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, amount *int64) (AuthorizationResult, int64, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionCashOut}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, 0, nil
	}

	paid, err := a.escrows.CashOut(tableID, callerID, amount)
	if err != nil {
		return result, 0, err
	}
	a.ledgr.RecordCashOut(tableID, "", callerID, paid)

	a.emit(EventPlayerCashedOut, ctx, map[string]interface{}{"amount": paid})
	return result, paid, nil
}

// StartHand transitions the table Open → Active, freezing the club's
// current rake policy reference into the table's RakePolicySnapshot for the
// hand's duration (spec §4.10's Rake Policy Guard).
func (a *Authority) StartHand(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, handID econtypes.HandID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionStartHand}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	club, _ := a.registry.Get(clubID)
	now := a.clock.NowMillis()

	table := a.getTable(tableID)
	table.mu.Lock()
	table.CurrentHandID = handID
	table.RakePolicy = &PolicySnapshot{PolicyID: club.RakeCfg.PolicyName, PolicyHash: club.RakeCfg.Hash(), Config: club.RakeCfg}
	table.mu.Unlock()

	if !table.request(transitionStartHand, now) {
		table.mu.Lock()
		table.CurrentHandID = ""
		table.RakePolicy = nil
		table.mu.Unlock()
		result.Allowed = false
		result.DenialReason = DenialTableFull
		return result, nil
	}

	a.emit(EventHandStarted, ctx, map[string]interface{}{"handId": string(handID)})
	return result, nil
}

// SettleHandAndEndHand runs the Settlement Engine against the table's frozen
// rake policy, then transitions the table back to Open and releases the
// freeze, matching spec §4.10 step 6 ("Authority closes hand → rake-policy
// freeze released").
func (a *Authority) SettleHandAndEndHand(clubID econtypes.ClubID, tableID econtypes.TableID, handID econtypes.HandID,
	contributors []sidepot.Contributor, ranking map[econtypes.PlayerID]int, flopSeen bool, finalStreet econtypes.Street) (*settlement.Record, *econerr.Error) {

	ctx := AuthorizationContext{ClubID: clubID, TableID: tableID, Action: ActionForceAction}
	now := a.clock.NowMillis()

	table := a.getTable(tableID)
	var cfg rake.Config
	if table != nil {
		table.mu.Lock()
		snapshot := table.RakePolicy
		table.mu.Unlock()
		if snapshot != nil {
			cfg = snapshot.Config
		}
	}

	a.emit(EventSettlementStarted, ctx, map[string]interface{}{"handId": string(handID)})

	record, err := a.settleEng.SettleHand(settlement.Request{
		TableID:      tableID,
		HandID:       handID,
		Contributors: contributors,
		Ranking:      ranking,
		FlopSeen:     flopSeen,
		FinalStreet:  finalStreet,
		RakeConfig:   cfg,
	}, now)
	if err != nil {
		return nil, err
	}

	if table != nil {
		table.request(transitionEndHand, now)
	}

	a.emit(EventSettlementCompleted, ctx, map[string]interface{}{"handId": string(handID), "totalRake": record.TotalRake})
	return record, nil
}

// PauseTable, ResumeTable and CloseTable drive the remaining lifecycle
// transitions.

func (a *Authority) PauseTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionPauseTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}
	a.getTable(tableID).request(transitionPause, a.clock.NowMillis())
	a.emit(EventTablePaused, ctx, nil)
	return result, nil
}

func (a *Authority) ResumeTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionResumeTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}
	a.getTable(tableID).request(transitionResume, a.clock.NowMillis())
	a.emit(EventTableResumed, ctx, nil)
	return result, nil
}

func (a *Authority) CloseTable(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionCloseTable}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	table := a.getTable(tableID)
	now := a.clock.NowMillis()
	for player := range table.Seats {
		if _, ok := a.escrows.Get(tableID, player); ok {
			if amount, err := a.escrows.CashOut(tableID, player, nil); err == nil && amount > 0 {
				a.ledgr.RecordCashOut(tableID, "", player, amount)
			}
		}
	}
	table.request(transitionClose, now)

	a.emit(EventTableClosed, ctx, nil)
	return result, nil
}

// UpdateRakePolicy changes the club's rake configuration, rejected while any
// of the club's tables has an active hand (frozen-policy guard).
func (a *Authority) UpdateRakePolicy(clubID econtypes.ClubID, callerID econtypes.PlayerID, cfg rake.Config) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionUpdateRakePolicy}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	a.mu.Lock()
	for _, t := range a.tables {
		if t.ClubID != clubID {
			continue
		}
		t.mu.Lock()
		locked := t.RakePolicy != nil
		t.mu.Unlock()
		if locked {
			a.mu.Unlock()
			result.Allowed = false
			result.DenialReason = DenialRakePolicyLocked
			a.emit(EventAuthorizationDenied, ctx, map[string]interface{}{"reason": string(DenialRakePolicyLocked)})
			return result, nil
		}
	}
	a.mu.Unlock()

	club, _ := a.registry.Get(clubID)
	club.RakeCfg = cfg
	a.registry.Put(club)

	a.emit(EventClubRakePolicyUpdated, ctx, nil)
	return result, nil
}

// stampedResult builds an AuthorizationResult for the handful of methods
// that cannot run through the normal authorize preamble (create_club has no
// existing club to authorize against; accept_invitation's caller is not yet
// a member, so the usual role lookup would always deny).
func (a *Authority) stampedResult(action Action, callerID econtypes.PlayerID) AuthorizationResult {
	return AuthorizationResult{
		Allowed:   true,
		RequestID: a.requestID(),
		CallerID:  callerID,
		Action:    action,
		Timestamp: a.clock.NowMillis(),
	}
}

func (a *Authority) denyUnauthorized(ctx AuthorizationContext, result *AuthorizationResult, reason DenialReason) {
	result.Allowed = false
	result.DenialReason = reason
	a.emit(EventAuthorizationDenied, ctx, map[string]interface{}{"reason": string(reason)})
}

// CreateClub registers a new club owned by callerID. Spec §4.10's role
// matrix lists create_club as open to "any" caller, so unlike every other
// club-scoped action it never runs through Engine.Authorize — there is no
// existing club yet for that check to consult.
func (a *Authority) CreateClub(callerID econtypes.PlayerID, clubID econtypes.ClubID, minBuyIn, maxBuyIn int64, cfg rake.Config) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionCreateClub}
	result := a.stampedResult(ActionCreateClub, callerID)

	if _, exists := a.registry.Get(clubID); exists {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.registry.Put(NewClub(clubID, callerID, minBuyIn, maxBuyIn, cfg))

	a.emit(EventClubCreated, ctx, map[string]interface{}{"ownerId": string(callerID)})
	return result, nil
}

// UpdateClubConfig changes a club's buy-in bounds. Rake policy changes go
// through UpdateRakePolicy, which also enforces the frozen-policy guard.
func (a *Authority) UpdateClubConfig(clubID econtypes.ClubID, callerID econtypes.PlayerID, minBuyIn, maxBuyIn int64) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionUpdateClubConfig}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	a.registry.UpdateConfig(clubID, minBuyIn, maxBuyIn)

	a.emit(EventClubConfigUpdated, ctx, map[string]interface{}{"minBuyIn": minBuyIn, "maxBuyIn": maxBuyIn})
	return result, nil
}

// DeleteClub deactivates a club. The record, membership roster, and
// settlement history are kept — DenialClubNotActive then refuses every
// further action against it.
func (a *Authority) DeleteClub(clubID econtypes.ClubID, callerID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionDeleteClub}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	a.registry.SetActive(clubID, false)

	a.emit(EventClubDeleted, ctx, nil)
	return result, nil
}

// InviteMember records a pending invitation for targetID, refused if they
// are already a member or banned.
func (a *Authority) InviteMember(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionInviteMember}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.Invite(clubID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberInvited, ctx, nil)
	return result, nil
}

// AcceptInvitation admits callerID as a Member of clubID, consuming their
// pending invitation. Like CreateClub, this cannot run through
// Engine.Authorize: an invitee is RoleNone until they accept, and the normal
// role lookup would deny DenialNotClubMember before ever checking the
// invitation.
func (a *Authority) AcceptInvitation(clubID econtypes.ClubID, callerID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, Action: ActionAcceptInvitation}
	result := a.stampedResult(ActionAcceptInvitation, callerID)

	club, ok := a.registry.Get(clubID)
	if !ok || !club.Active {
		a.denyUnauthorized(ctx, &result, DenialNotClubMember)
		return result, nil
	}
	if a.registry.IsBanned(clubID, callerID) {
		a.denyUnauthorized(ctx, &result, DenialMemberBanned)
		return result, nil
	}
	if !a.registry.AcceptInvite(clubID, callerID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberJoined, ctx, nil)
	return result, nil
}

// RemoveMember drops targetID from clubID's membership. Engine.Authorize
// already refuses this against an OWNER target, or against another MANAGER
// unless the caller is the OWNER.
func (a *Authority) RemoveMember(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionRemoveMember}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.RemoveMember(clubID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberLeft, ctx, nil)
	return result, nil
}

// BanMember removes targetID from membership and refuses them future
// invitations until UnbanMember.
func (a *Authority) BanMember(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionBanMember}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	a.registry.Ban(clubID, targetID)

	a.emit(EventMemberBanned, ctx, nil)
	return result, nil
}

// UnbanMember clears targetID from the ban list. They need a fresh
// invitation to rejoin — unban does not restore membership.
func (a *Authority) UnbanMember(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionUnbanMember}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.Unban(clubID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberUnbanned, ctx, nil)
	return result, nil
}

// PromoteToManager raises targetID, an existing Member, to MANAGER.
func (a *Authority) PromoteToManager(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionPromoteToManager}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.Promote(clubID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberPromoted, ctx, nil)
	return result, nil
}

// DemoteFromManager lowers targetID back to PLAYER. Engine.Authorize already
// refuses this against the OWNER.
func (a *Authority) DemoteFromManager(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionDemoteFromManager}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.Demote(clubID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventMemberDemoted, ctx, nil)
	return result, nil
}

// TransferOwnership hands clubID's ownership to targetID, who must already
// be a member. The outgoing owner is kept on as a manager.
func (a *Authority) TransferOwnership(clubID econtypes.ClubID, callerID, targetID econtypes.PlayerID) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TargetID: targetID, Action: ActionTransferOwnership}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if !a.registry.TransferOwnership(clubID, callerID, targetID) {
		a.denyUnauthorized(ctx, &result, DenialInvalidTarget)
		return result, nil
	}

	a.emit(EventOwnershipTransferred, ctx, nil)
	return result, nil
}

// Rebuy adds chips to callerID's existing stack at tableID from their
// balance — the same escrow mechanics as BuyIn, just while already seated.
// Denied while a hand is in progress (spec §4.10 hand-lifecycle
// preconditions).
func (a *Authority) Rebuy(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, amount int64) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionRebuy}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if err := a.escrows.BuyIn(tableID, callerID, amount); err != nil {
		return result, err
	}
	a.ledgr.RecordBuyIn(tableID, "", callerID, amount)

	a.emit(EventPlayerRebought, ctx, map[string]interface{}{"amount": amount})
	return result, nil
}

// TopUp adds chips to callerID's stack at tableID. Unlike Rebuy it is
// permitted mid-hand (not in the hand-in-progress denial set).
func (a *Authority) TopUp(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, amount int64) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionTopUp}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	if err := a.escrows.BuyIn(tableID, callerID, amount); err != nil {
		return result, err
	}
	a.ledgr.RecordBuyIn(tableID, "", callerID, amount)

	a.emit(EventPlayerToppedUp, ctx, map[string]interface{}{"amount": amount})
	return result, nil
}

// ForceAction lets a manager clear a table's stuck hand-in-progress lock
// outside the normal settlement flow — the operator override for a hand
// engine that has crashed or desynced mid-hand, reported alongside a reason
// for the audit log.
func (a *Authority) ForceAction(clubID econtypes.ClubID, callerID econtypes.PlayerID, tableID econtypes.TableID, reason string) (AuthorizationResult, *econerr.Error) {
	ctx := AuthorizationContext{ClubID: clubID, CallerID: callerID, TableID: tableID, Action: ActionForceAction}
	d, result := a.authorize(ctx)
	if !d.allowed {
		return result, nil
	}

	a.getTable(tableID).ForceRecover(a.clock.NowMillis())

	a.emit(EventForceAction, ctx, map[string]interface{}{"reason": reason})
	return result, nil
}
