package authority

import (
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// EventType enumerates the authority event stream (spec §6): the action set
// plus the lifecycle/auditing events that do not correspond 1:1 to an
// Action.
type EventType string

const (
	EventAuthorizationDenied   EventType = "authorization_denied"
	EventTableCreated          EventType = "table_created"
	EventTableClosed           EventType = "table_closed"
	EventTablePaused           EventType = "table_paused"
	EventTableResumed          EventType = "table_resumed"
	EventHandStarted           EventType = "hand_started"
	EventPlayerJoinedTable     EventType = "player_joined_table"
	EventPlayerLeftTable       EventType = "player_left_table"
	EventPlayerKickedTable     EventType = "player_kicked_table"
	EventPlayerBoughtIn        EventType = "player_bought_in_table"
	EventPlayerCashedOut       EventType = "player_cashed_out_table"
	EventPlayerRebought        EventType = "player_rebought_table"
	EventPlayerToppedUp        EventType = "player_topped_up_table"
	EventOwnershipTransferred  EventType = "ownership_transferred"
	EventClubRakePolicyUpdated EventType = "club_rake_policy_updated"
	EventSettlementStarted     EventType = "settlement_started"
	EventSettlementCompleted   EventType = "settlement_completed"
	EventRecoveryStarted       EventType = "recovery_started"
	EventRecoveryCompleted     EventType = "recovery_completed"
	EventInvariantViolation    EventType = "invariant_violation"

	EventClubCreated       EventType = "club_created"
	EventClubConfigUpdated EventType = "club_config_updated"
	EventClubDeleted       EventType = "club_deleted"
	EventMemberInvited     EventType = "member_invited"
	EventMemberJoined      EventType = "member_joined"
	EventMemberLeft        EventType = "member_left"
	EventMemberBanned      EventType = "member_banned"
	EventMemberUnbanned    EventType = "member_unbanned"
	EventMemberPromoted    EventType = "member_promoted"
	EventMemberDemoted     EventType = "member_demoted"
	EventForceAction       EventType = "force_action"
)

// Event is one immutable record on the authority's event log (spec §4.10,
// §6: `{eventId, type, clubId, tableId?, actorId, targetId?, data, timestamp}`).
type Event struct {
	EventID   string
	Type      EventType
	ClubID    econtypes.ClubID
	TableID   econtypes.TableID
	ActorID   econtypes.PlayerID
	TargetID  econtypes.PlayerID
	Data      map[string]interface{}
	Timestamp int64
}

// Bus fans authority events out to subscribers via a bounded queue worked by
// a small pool of goroutines, the same shape as the teacher's
// EventProcessor/eventWorker pair — only the payload type changed, chip
// movement events instead of table-snapshot broadcasts.
type Bus struct {
	log      slog.Logger
	queue    chan Event
	handlers []func(Event)
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewBus creates an event bus with the given queue depth. Start launches the
// worker pool that drains it.
func NewBus(log slog.Logger, queueSize int) *Bus {
	return &Bus{
		log:      log,
		queue:    make(chan Event, queueSize),
		stopChan: make(chan struct{}),
	}
}

// Subscribe registers a handler invoked for every published event. Must be
// called before Start.
func (b *Bus) Subscribe(handler func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Start launches the worker pool. Calling it twice is a no-op.
func (b *Bus) Start(workerCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}
}

// Stop drains in-flight workers and blocks until they exit.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	b.started = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()
}

// Publish enqueues an event for dispatch. If the queue is full the event is
// dropped and logged — an authority event is an audit record, not a
// commit-path write, so backpressure here must never block the caller's
// economy operation.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()

	if !started {
		b.log.Warnf("event bus not started, dropping event: %s", e.Type)
		return
	}

	select {
	case b.queue <- e:
	default:
		b.log.Errorf("event queue full, dropping event: %s table=%s", e.Type, e.TableID)
	}
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		case e := <-b.queue:
			b.mu.Lock()
			handlers := append([]func(Event){}, b.handlers...)
			b.mu.Unlock()
			for _, h := range handlers {
				h(e)
			}
		}
	}
}
