package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome tells the caller what an accepted command did.
type Outcome string

const (
	OutcomeAccepted   Outcome = "ACCEPTED"
	OutcomeDispatched Outcome = "DISPATCHED"
	// OutcomeNoCapacity leaves the call PENDING and queued. It is not an error.
	OutcomeNoCapacity Outcome = "NO_CAPACITY"
)

// Result pairs an outcome with the call as it stands after the command.
type Result struct {
	Outcome Outcome
	Call    Call
}

// NewCall is the intake payload for CreateCall.
type NewCall struct {
	CallerName      string
	CallerPhone     string
	IncidentAddress string
	Latitude        *float64
	Longitude       *float64
	IncidentType    IncidentType
	Priority        Priority
	Description     string
}

func (n NewCall) validate() error {
	if strings.TrimSpace(n.IncidentAddress) == "" {
		return fmt.Errorf("%w: incident address is required", ErrInvalidCommand)
	}
	if _, err := ParseIncidentType(string(n.IncidentType)); err != nil {
		return err
	}
	if _, err := ParsePriority(string(n.Priority)); err != nil {
		return err
	}
	if (n.Latitude == nil) != (n.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be given together", ErrInvalidCommand)
	}
	if n.Latitude != nil {
		return validateCoordinates(*n.Latitude, *n.Longitude)
	}
	return nil
}

func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidCommand)
	}
	return nil
}

// ReconcileReport describes one recount of the summary.
type ReconcileReport struct {
	Drifted bool
	Before  Summary
	After   Summary
}

// Options tunes the coordinator. Zero values get defaults.
type Options struct {
	Crew               CrewPolicy
	PersistenceTimeout time.Duration
	AllocationInterval time.Duration
	ReconcileInterval  time.Duration
	AutoDispatch       bool
	CallNumberAttempts int
	Now                func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PersistenceTimeout <= 0 {
		o.PersistenceTimeout = 5 * time.Second
	}
	if o.AllocationInterval <= 0 {
		o.AllocationInterval = 15 * time.Second
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = time.Minute
	}
	if o.CallNumberAttempts <= 0 {
		o.CallNumberAttempts = 3
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Coordinator is the single entry point for commands that change calls.
//
// Commands on one call are serialised by a per-call mutex; commands on
// different calls run in parallel. Allocation passes are serialised by passMu.
// Lock order is passMu, then the call lock, then the ledger.
type Coordinator struct {
	registry Registry
	roster   Roster
	notifier Notifier
	log      zerolog.Logger
	opts     Options

	ledger  *Ledger
	queue   *PendingQueue
	summary *Aggregator

	callLocks sync.Map
	// barrier is read-held by commands across persist and aggregate, and
	// write-held by reconciliation.
	barrier sync.RWMutex
	passMu  sync.Mutex
	dutyMu  sync.Mutex
	kick    chan struct{}

	clockMu   sync.Mutex
	lastStamp time.Time
	numberSeq atomic.Uint32
}

// NewCoordinator wires the engine. Call Recover before accepting commands.
func NewCoordinator(registry Registry, roster Roster, notifier Notifier, opts Options, log zerolog.Logger) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	opts = opts.withDefaults()
	c := &Coordinator{
		registry: registry,
		roster:   roster,
		notifier: notifier,
		log:      log.With().Str("component", "dispatch").Logger(),
		opts:     opts,
		ledger:   NewLedger(Allocator{Crew: opts.Crew}, nil, nil),
		queue:    NewPendingQueue(),
		kick:     make(chan struct{}, 1),
	}
	c.summary = NewAggregator(opts.Now, func(s Summary) {
		observeSummary(s)
		c.notifier.SummaryChanged(s)
	})
	return c
}

// Recover rebuilds the ledger, the pending queue and the summary from the
// roster and the registry. It must run before the coordinator serves commands.
func (c *Coordinator) Recover(ctx context.Context) error {
	stations, err := c.roster.Stations(ctx)
	if err != nil {
		return fmt.Errorf("loading stations: %w", err)
	}
	firefighters, err := c.roster.Firefighters(ctx)
	if err != nil {
		return fmt.Errorf("loading firefighters: %w", err)
	}
	active, err := c.registry.List(ctx, CallFilter{Statuses: ActiveStatuses})
	if err != nil {
		return fmt.Errorf("loading active calls: %w", err)
	}

	ledger := NewLedger(Allocator{Crew: c.opts.Crew}, stations, firefighters)
	queue := NewPendingQueue()
	for _, call := range active {
		switch {
		case call.Status == StatusPending:
			queue.Push(call.ID, call.Priority, call.ReceivedAt)
		case call.Status.HoldsAssignment() && call.AssignedStationID != nil:
			err := ledger.Restore(Reservation{
				CallID:         call.ID,
				StationID:      *call.AssignedStationID,
				FirefighterIDs: call.FirefighterIDs,
			})
			if err != nil {
				c.log.Warn().Err(err).Str("call_id", call.ID).Msg("restored assignment is inconsistent")
			}
		}
	}
	c.ledger = ledger
	c.queue = queue

	counts, err := c.registry.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("counting calls: %w", err)
	}
	c.summary.Replace(counts)
	pendingQueueDepth.Set(float64(queue.Len()))

	c.log.Info().
		Int("stations", len(stations)).
		Int("firefighters", len(firefighters)).
		Int("active_calls", len(active)).
		Int("pending", queue.Len()).
		Msg("dispatch state recovered")
	return nil
}

// Run drives background allocation and reconciliation until ctx ends.
func (c *Coordinator) Run(ctx context.Context) error {
	allocTicker := time.NewTicker(c.opts.AllocationInterval)
	defer allocTicker.Stop()
	reconcileTicker := time.NewTicker(c.opts.ReconcileInterval)
	defer reconcileTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.kick:
			c.allocate(ctx)
		case <-allocTicker.C:
			if c.queue.Len() > 0 {
				c.allocate(ctx)
			}
		case <-reconcileTicker.C:
			if _, err := c.Reconcile(ctx); err != nil {
				c.log.Error().Err(err).Msg("periodic reconciliation failed")
			}
		}
	}
}

// Kick asks the background loop for an allocation pass.
func (c *Coordinator) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// CreateCall registers a new PENDING call and queues it for allocation. With
// auto dispatch enabled it also runs an allocation pass and returns the call
// as it stands afterwards.
func (c *Coordinator) CreateCall(ctx context.Context, in NewCall) (Call, error) {
	if err := in.validate(); err != nil {
		c.record("create", "", err)
		return Call{}, err
	}
	in.IncidentType, _ = ParseIncidentType(string(in.IncidentType))
	in.Priority, _ = ParsePriority(string(in.Priority))

	id := uuid.NewString()
	lock := c.lockFor(id)
	lock.Lock()
	c.barrier.RLock()

	now := c.clock()
	call := Call{
		ID:              id,
		CallerName:      strings.TrimSpace(in.CallerName),
		CallerPhone:     strings.TrimSpace(in.CallerPhone),
		IncidentAddress: strings.TrimSpace(in.IncidentAddress),
		Latitude:        cloneFloat(in.Latitude),
		Longitude:       cloneFloat(in.Longitude),
		IncidentType:    in.IncidentType,
		Priority:        in.Priority,
		Description:     strings.TrimSpace(in.Description),
		Status:          StatusPending,
		ReceivedAt:      now,
		UpdatedAt:       now,
		Version:         1,
	}

	var err error
	for attempt := 0; attempt < c.opts.CallNumberAttempts; attempt++ {
		call.CallNumber = c.nextCallNumber(now)
		err = c.save(ctx, call)
		if !errors.Is(err, ErrDuplicateCallNumber) {
			break
		}
		c.log.Warn().Str("call_number", call.CallNumber).Msg("call number taken, regenerating")
	}
	if err != nil {
		c.barrier.RUnlock()
		lock.Unlock()
		c.callLocks.Delete(id)
		c.record("create", "", err)
		return Call{}, err
	}

	c.queue.Push(call.ID, call.Priority, call.ReceivedAt)
	c.notifier.CallCreated(call.Clone())
	c.summary.Created()
	c.barrier.RUnlock()
	lock.Unlock()

	pendingQueueDepth.Set(float64(c.queue.Len()))
	c.record("create", OutcomeAccepted, nil)
	c.log.Info().
		Str("call_id", call.ID).
		Str("call_number", call.CallNumber).
		Str("incident_type", string(call.IncidentType)).
		Str("priority", string(call.Priority)).
		Msg("emergency call received")

	if c.opts.AutoDispatch {
		if res, ok := c.allocate(ctx)[id]; ok && res.err == nil {
			return res.call, nil
		}
	}
	return call, nil
}

// RequestDispatch runs an allocation pass over every pending call in priority
// order and reports what happened to the requested one.
func (c *Coordinator) RequestDispatch(ctx context.Context, id string) (Result, error) {
	current, err := c.prepareDispatch(ctx, id)
	if err != nil {
		c.record("dispatch", "", err)
		return Result{Call: current}, err
	}

	res, ok := c.allocate(ctx)[id]
	if !ok {
		// The call left PENDING between the check and the pass.
		latest, err := c.Call(ctx, id)
		if err == nil {
			_, err = Apply(latest.Status, EventDispatch)
		}
		if err == nil {
			err = fmt.Errorf("%w: call %s is no longer queued", ErrConflict, id)
		}
		c.record("dispatch", "", err)
		return Result{Call: latest}, err
	}
	c.record("dispatch", res.outcome, res.err)
	if res.err != nil {
		return Result{Call: res.call}, res.err
	}
	return Result{Outcome: res.outcome, Call: res.call}, nil
}

func (c *Coordinator) prepareDispatch(ctx context.Context, id string) (Call, error) {
	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	call, err := c.load(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if _, err := Apply(call.Status, EventDispatch); err != nil {
		return call, fmt.Errorf("call %s: %w", call.CallNumber, err)
	}
	c.queue.Push(call.ID, call.Priority, call.ReceivedAt)
	return call, nil
}

// AdvanceStatus applies a lifecycle event. DISPATCH goes through the allocator.
func (c *Coordinator) AdvanceStatus(ctx context.Context, id string, ev Event) (Result, error) {
	if ev == EventDispatch {
		return c.RequestDispatch(ctx, id)
	}
	res, err := c.transition(ctx, id, ev)
	c.record(strings.ToLower(string(ev)), res.Outcome, err)
	return res, err
}

// CancelCall cancels a PENDING or DISPATCHED call and frees its resources.
func (c *Coordinator) CancelCall(ctx context.Context, id string) (Result, error) {
	res, err := c.transition(ctx, id, EventCancel)
	c.record("cancel", res.Outcome, err)
	return res, err
}

func (c *Coordinator) transition(ctx context.Context, id string, ev Event) (Result, error) {
	lock := c.lockFor(id)
	lock.Lock()

	var released, terminal bool
	res, err := func() (Result, error) {
		c.barrier.RLock()
		defer c.barrier.RUnlock()

		call, err := c.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		next, err := Apply(call.Status, ev)
		if err != nil {
			return Result{Call: call}, fmt.Errorf("call %s: %w", call.CallNumber, err)
		}

		updated := call.Clone()
		ts := c.stamp(call)
		updated.Status = next
		updated.UpdatedAt = ts
		switch next {
		case StatusEnRoute:
			updated.EnRouteAt = &ts
		case StatusOnScene:
			updated.ArrivedAt = &ts
		case StatusCleared:
			updated.ClearedAt = &ts
		case StatusCancelled:
			updated.CancelledAt = &ts
		}
		updated.Version++

		if err := c.save(ctx, updated); err != nil {
			return Result{Call: call}, err
		}

		if next.Terminal() {
			terminal = true
			_, released = c.ledger.Release(id)
			c.queue.Remove(id)
		}
		c.notifier.CallUpdated(updated.Clone(), call.Status)
		c.summary.Transition(call.Status, next)
		observeTransition(updated)

		c.log.Info().
			Str("call_id", updated.ID).
			Str("call_number", updated.CallNumber).
			Str("from", string(call.Status)).
			Str("to", string(next)).
			Msg("call status changed")
		return Result{Outcome: OutcomeAccepted, Call: updated}, nil
	}()
	lock.Unlock()

	if terminal {
		c.callLocks.Delete(id)
		pendingQueueDepth.Set(float64(c.queue.Len()))
	}
	if released {
		c.Kick()
	}
	return res, err
}

// UpdatePriority re-evaluates the priority of a call that is still PENDING.
func (c *Coordinator) UpdatePriority(ctx context.Context, id string, p Priority) (Result, error) {
	p, err := ParsePriority(string(p))
	if err != nil {
		c.record("priority", "", err)
		return Result{}, err
	}

	lock := c.lockFor(id)
	lock.Lock()
	res, err := func() (Result, error) {
		c.barrier.RLock()
		defer c.barrier.RUnlock()

		call, err := c.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if call.Status != StatusPending {
			return Result{Call: call}, fmt.Errorf("%w: priority of %s call %s is fixed", ErrInvalidTransition, call.Status, call.CallNumber)
		}
		if call.Priority == p {
			return Result{Outcome: OutcomeAccepted, Call: call}, nil
		}

		updated := call.Clone()
		updated.Priority = p
		updated.UpdatedAt = c.stamp(call)
		updated.Version++
		if err := c.save(ctx, updated); err != nil {
			return Result{Call: call}, err
		}
		c.queue.Push(updated.ID, updated.Priority, updated.ReceivedAt)
		c.notifier.PriorityChanged(updated.Clone(), call.Priority)
		return Result{Outcome: OutcomeAccepted, Call: updated}, nil
	}()
	lock.Unlock()

	c.record("priority", res.Outcome, err)
	if err == nil {
		c.Kick()
	}
	return res, err
}

// ReportLocation records the responding unit's last known position.
func (c *Coordinator) ReportLocation(ctx context.Context, id string, lat, lon float64) (Result, error) {
	if err := validateCoordinates(lat, lon); err != nil {
		c.record("location", "", err)
		return Result{}, err
	}

	lock := c.lockFor(id)
	lock.Lock()
	res, err := func() (Result, error) {
		c.barrier.RLock()
		defer c.barrier.RUnlock()

		call, err := c.load(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if !call.Status.HoldsAssignment() {
			return Result{Call: call}, fmt.Errorf("%w: no responder on %s call %s", ErrInvalidTransition, call.Status, call.CallNumber)
		}

		updated := call.Clone()
		ts := c.clock()
		updated.ResponderLatitude = &lat
		updated.ResponderLongitude = &lon
		updated.ResponderReportedAt = &ts
		updated.UpdatedAt = ts
		updated.Version++
		if err := c.save(ctx, updated); err != nil {
			return Result{Call: call}, err
		}
		c.notifier.LocationReported(updated.Clone())
		return Result{Outcome: OutcomeAccepted, Call: updated}, nil
	}()
	lock.Unlock()

	c.record("location", res.Outcome, err)
	return res, err
}

// SetFirefighterDuty moves a firefighter on or off duty. Going off duty takes
// the firefighter out of the ledger before the roster write so no pass can pick
// them meanwhile; going on duty reaches the ledger only once the write succeeded.
func (c *Coordinator) SetFirefighterDuty(ctx context.Context, id int64, onDuty bool) (Firefighter, error) {
	c.dutyMu.Lock()
	defer c.dutyMu.Unlock()

	ff, err := c.ledger.CheckDuty(id)
	if err != nil {
		c.record("duty", "", err)
		return Firefighter{}, err
	}
	prev := ff.Availability
	if !onDuty {
		if ff, _, err = c.ledger.SetDuty(id, false); err != nil {
			c.record("duty", "", err)
			return Firefighter{}, err
		}
	}

	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	defer cancel()
	if err := c.roster.SetFirefighterDuty(pctx, id, onDuty); err != nil {
		if !onDuty {
			c.ledger.RestoreDuty(id, prev)
		}
		err = c.storageError("saving duty", err)
		c.record("duty", "", err)
		return Firefighter{}, err
	}

	if onDuty {
		ff, _, err = c.ledger.SetDuty(id, true)
		if errors.Is(err, ErrConflict) {
			// Was already available and got picked by a pass while the write
			// was out. Assigned implies on duty.
			err = nil
		}
		if err != nil {
			c.record("duty", "", err)
			return Firefighter{}, err
		}
	}

	c.record("duty", OutcomeAccepted, nil)
	c.log.Info().Int64("firefighter_id", id).Bool("on_duty", onDuty).Msg("firefighter duty changed")
	if onDuty && prev != Available {
		c.Kick()
	}
	return ff, nil
}

// BroadcastAlert sends an operator alert to every connected client.
func (c *Coordinator) BroadcastAlert(alertType AlertType, message string) (Alert, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Alert{}, fmt.Errorf("%w: alert message is required", ErrInvalidCommand)
	}
	switch alertType {
	case AlertInfo, AlertWarning, AlertCritical:
	case "":
		alertType = AlertInfo
	default:
		return Alert{}, fmt.Errorf("%w: unknown alert type %q", ErrInvalidCommand, alertType)
	}
	alert := Alert{Message: message, Type: alertType, Timestamp: c.clock()}
	c.notifier.Alert(alert)
	return alert, nil
}

// Reconcile recounts calls per status from the registry while no transition
// is in flight. A mismatch is logged as an internal consistency fault and the
// recount replaces the incremental values.
func (c *Coordinator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	c.barrier.Lock()
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	counts, err := c.registry.CountByStatus(pctx)
	cancel()
	if err != nil {
		c.barrier.Unlock()
		return ReconcileReport{}, c.storageError("counting calls", err)
	}
	before, after, drifted := c.summary.Replace(counts)
	c.barrier.Unlock()

	if drifted {
		consistencyFaultsTotal.Inc()
		fault := fmt.Errorf("%w: incremental %v, recounted %v", ErrInternalConsistency, before.Counts(), after.Counts())
		c.log.Error().Err(fault).Uint64("version", after.Version).Msg("summary recomputed from registry")
		c.notifier.Alert(Alert{
			Message:   "Live summary drifted from call records and was recomputed",
			Type:      AlertWarning,
			Timestamp: c.clock(),
		})
	}
	return ReconcileReport{Drifted: drifted, Before: before, After: after}, nil
}

// Call returns a call by ID.
func (c *Coordinator) Call(ctx context.Context, id string) (Call, error) {
	return c.load(ctx, id)
}

// CallByNumber returns a call by its human-readable number.
func (c *Coordinator) CallByNumber(ctx context.Context, number string) (Call, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	defer cancel()
	call, err := c.registry.LoadByNumber(pctx, number)
	if err != nil {
		return Call{}, c.storageError("loading call", err)
	}
	return call, nil
}

// Calls lists calls matching filter, newest first.
func (c *Coordinator) Calls(ctx context.Context, filter CallFilter) ([]Call, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	defer cancel()
	calls, err := c.registry.List(pctx, filter)
	if err != nil {
		return nil, c.storageError("listing calls", err)
	}
	return calls, nil
}

// ActiveCalls lists every call that is not cleared or cancelled.
func (c *Coordinator) ActiveCalls(ctx context.Context) ([]Call, error) {
	return c.Calls(ctx, CallFilter{Statuses: ActiveStatuses})
}

// Summary returns the live counts.
func (c *Coordinator) Summary() Summary {
	return c.summary.Snapshot()
}

// Stations returns every station with its current load.
func (c *Coordinator) Stations() []StationView {
	return c.ledger.Stations()
}

// Firefighters returns the roster with live availability.
func (c *Coordinator) Firefighters() []Firefighter {
	return c.ledger.Firefighters()
}

// QueueDepth is the number of calls waiting for resources.
func (c *Coordinator) QueueDepth() int {
	return c.queue.Len()
}

type passResult struct {
	outcome Outcome
	call    Call
	err     error
}

// allocate offers free resources to pending calls in priority order. A call
// that cannot be served stays queued and later calls are still considered.
func (c *Coordinator) allocate(ctx context.Context) map[string]passResult {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	results := make(map[string]passResult)
	for _, id := range c.queue.Ordered() {
		res, skipped := c.tryDispatch(ctx, id)
		if skipped {
			continue
		}
		results[id] = res
		if res.err != nil {
			c.log.Error().Err(res.err).Str("call_id", id).Msg("dispatch failed")
		}
	}
	pendingQueueDepth.Set(float64(c.queue.Len()))
	return results
}

func (c *Coordinator) tryDispatch(ctx context.Context, id string) (passResult, bool) {
	lock := c.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	c.barrier.RLock()
	defer c.barrier.RUnlock()

	call, err := c.load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.queue.Remove(id)
			return passResult{}, true
		}
		return passResult{err: err}, false
	}
	next, err := Apply(call.Status, EventDispatch)
	if err != nil {
		c.queue.Remove(id)
		return passResult{}, true
	}

	reservation, ok := c.ledger.Reserve(Request{
		CallID:       call.ID,
		IncidentType: call.IncidentType,
		Latitude:     call.Latitude,
		Longitude:    call.Longitude,
	})
	if !ok {
		return passResult{outcome: OutcomeNoCapacity, call: call}, false
	}

	updated := call.Clone()
	ts := c.stamp(call)
	stationID := reservation.StationID
	updated.Status = next
	updated.DispatchedAt = &ts
	updated.UpdatedAt = ts
	updated.AssignedStationID = &stationID
	updated.FirefighterIDs = reservation.FirefighterIDs
	updated.Version++

	if err := c.save(ctx, updated); err != nil {
		c.ledger.Release(call.ID)
		return passResult{call: call, err: err}, false
	}

	c.queue.Remove(call.ID)
	c.notifier.CallUpdated(updated.Clone(), call.Status)
	c.summary.Transition(call.Status, next)

	c.log.Info().
		Str("call_id", updated.ID).
		Str("call_number", updated.CallNumber).
		Int64("station_id", stationID).
		Ints64("firefighter_ids", updated.FirefighterIDs).
		Float64("distance_km", reservation.DistanceKm).
		Msg("call dispatched")
	return passResult{outcome: OutcomeDispatched, call: updated}, false
}

func (c *Coordinator) lockFor(id string) *sync.Mutex {
	v, _ := c.callLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (c *Coordinator) load(ctx context.Context, id string) (Call, error) {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	defer cancel()
	call, err := c.registry.Load(pctx, id)
	if err != nil {
		return Call{}, c.storageError("loading call", err)
	}
	return call, nil
}

func (c *Coordinator) save(ctx context.Context, call Call) error {
	pctx, cancel := context.WithTimeout(ctx, c.opts.PersistenceTimeout)
	defer cancel()
	if err := c.registry.Save(pctx, call); err != nil {
		return c.storageError("saving call "+call.ID, err)
	}
	return nil
}

func (c *Coordinator) storageError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", ErrPersistenceTimeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrPersistenceFailed, op, err)
	}
}

// clock never goes backwards and matches the registry's microsecond precision.
func (c *Coordinator) clock() time.Time {
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	now := c.opts.Now().UTC().Truncate(time.Microsecond)
	if now.Before(c.lastStamp) {
		now = c.lastStamp
	}
	c.lastStamp = now
	return now
}

// stamp is a transition timestamp that is never earlier than any timestamp
// already on the call.
func (c *Coordinator) stamp(call Call) time.Time {
	ts := c.clock()
	if latest := call.latestTimestamp(); ts.Before(latest) {
		ts = latest
	}
	return ts
}

func (c *Coordinator) nextCallNumber(at time.Time) string {
	n := c.numberSeq.Add(1) % 10000
	return fmt.Sprintf("CALL-%s-%04d", at.UTC().Format("20060102-150405"), n)
}

func (c *Coordinator) record(command string, outcome Outcome, err error) {
	label := strings.ToLower(string(outcome))
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidTransition):
		label = "invalid_transition"
	case errors.Is(err, ErrPersistenceTimeout):
		label = "persistence_timeout"
	case errors.Is(err, ErrPersistenceFailed):
		label = "persistence_failed"
	case errors.Is(err, ErrNotFound):
		label = "not_found"
	case errors.Is(err, ErrInvalidCommand):
		label = "invalid_command"
	case errors.Is(err, ErrConflict):
		label = "conflict"
	default:
		label = "error"
	}
	commandsTotal.WithLabelValues(command, label).Inc()
}
