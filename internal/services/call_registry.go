package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callbridge/internal/cache"
	"github.com/yoockh/callbridge/internal/gateway"
	"github.com/yoockh/callbridge/internal/models"
	"github.com/yoockh/callbridge/internal/utils"
)

const (
	mirrorTTL      = 10 * time.Minute
	mirrorTimeout  = 2 * time.Second
	recordTimeout  = 5 * time.Second
	registryQueue  = 256
	mirrorKeySpace = "call:"
)

type CallRegistryOptions struct {
	// Mirror publishes snapshots so other gateway instances can answer
	// lookups. Optional.
	Mirror cache.Cache
	// Logs persists a record of each finished call. Optional.
	Logs   CallLogService
	Logger *logrus.Logger
}

// CallRegistry tracks the calls running in this process for diagnostics.
// Every connection is its own entry; several legs may carry the same call
// id. It implements gateway.Observer.
type CallRegistry struct {
	mirror cache.Cache
	logs   CallLogService
	log    *logrus.Logger

	mu      sync.Mutex
	calls   map[*gateway.Call]struct{}
	pending int
	closed  bool
	active  sync.WaitGroup

	ops    chan registryOp
	worker sync.WaitGroup
}

// registryOp is one ordered side effect: a snapshot to publish, a
// snapshot to delete (snap == nil) or a record to persist.
type registryOp struct {
	callID string
	snap   *models.CallSnapshot
	record *models.CallRecord
}

var _ gateway.Observer = (*CallRegistry)(nil)

func NewCallRegistry(opts CallRegistryOptions) *CallRegistry {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &CallRegistry{
		mirror: opts.Mirror,
		logs:   opts.Logs,
		log:    log,
		calls:  map[*gateway.Call]struct{}{},
		ops:    make(chan registryOp, registryQueue),
	}
	r.worker.Add(1)
	go r.run(r.ops)
	return r
}

// Reserve counts a connection that is about to be upgraded so shutdown
// waits for it. It fails only once shutdown has begun.
func (r *CallRegistry) Reserve() error {
	const op = "CallRegistry.Reserve"

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return utils.E(utils.CodeUnavailable, op, "gateway shutting down", nil)
	}
	r.pending++
	r.active.Add(1)
	return nil
}

// Release drops a reservation whose call never started.
func (r *CallRegistry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending > 0 {
		r.pending--
		r.active.Done()
	}
}

func (r *CallRegistry) CallStarted(c *gateway.Call) {
	r.mu.Lock()
	if _, ok := r.calls[c]; !ok {
		if r.pending > 0 {
			r.pending--
		} else {
			r.active.Add(1)
		}
		r.calls[c] = struct{}{}
	}
	r.mu.Unlock()

	snap := c.Snapshot()
	r.enqueue(registryOp{callID: snap.CallID, snap: &snap})
}

func (r *CallRegistry) CallStateChanged(c *gateway.Call, st models.CallState) {
	if st == models.CallClosed {
		return
	}
	snap := c.Snapshot()
	snap.State = st
	r.enqueue(registryOp{callID: snap.CallID, snap: &snap})
}

func (r *CallRegistry) CallEnded(c *gateway.Call, rec models.CallRecord) {
	id := c.Session().CallID
	r.mu.Lock()
	if _, ok := r.calls[c]; ok {
		delete(r.calls, c)
		r.active.Done()
	}
	other := r.latestLocked(id)
	r.mu.Unlock()

	// the mirror keeps one entry per call id; hand it to a leg still running
	if other != nil {
		snap := other.Snapshot()
		r.enqueue(registryOp{callID: id, snap: &snap})
	} else {
		r.enqueue(registryOp{callID: id})
	}
	r.enqueue(registryOp{callID: id, record: &rec})
}

// latestLocked returns the most recently accepted leg for callID.
func (r *CallRegistry) latestLocked(callID string) *gateway.Call {
	var best *gateway.Call
	for c := range r.calls {
		s := c.Session()
		if s.CallID != callID {
			continue
		}
		if best == nil || s.AcceptedAt.After(best.Session().AcceptedAt) {
			best = c
		}
	}
	return best
}

// List returns a snapshot of every running leg, oldest first.
func (r *CallRegistry) List() []models.CallSnapshot {
	r.mu.Lock()
	out := make([]models.CallSnapshot, 0, len(r.calls))
	for c := range r.calls {
		out = append(out, c.Snapshot())
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Get looks a call up locally, then in the mirror. When several legs share
// callID the most recent one is returned.
func (r *CallRegistry) Get(ctx context.Context, callID string) (models.CallSnapshot, error) {
	const op = "CallRegistry.Get"

	r.mu.Lock()
	c := r.latestLocked(callID)
	r.mu.Unlock()
	if c != nil {
		return c.Snapshot(), nil
	}

	if r.mirror != nil {
		var snap models.CallSnapshot
		hit, err := r.mirror.GetJSON(ctx, mirrorKeySpace+callID, &snap)
		if err != nil {
			return models.CallSnapshot{}, utils.E(utils.CodeUnavailable, op, "registry mirror unavailable", err)
		}
		if hit {
			return snap, nil
		}
	}
	return models.CallSnapshot{}, utils.E(utils.CodeNotFound, op, "call not found", utils.ErrNotFound)
}

// Len counts reserved and running legs.
func (r *CallRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending + len(r.calls)
}

// StopAll refuses new reservations and stops every running call with cause.
func (r *CallRegistry) StopAll(cause error) int {
	r.mu.Lock()
	r.closed = true
	calls := make([]*gateway.Call, 0, len(r.calls))
	for c := range r.calls {
		calls = append(calls, c)
	}
	r.mu.Unlock()

	for _, c := range calls {
		c.Stop(cause)
	}
	return len(calls)
}

// Wait blocks until every reserved call has ended or ctx is done.
func (r *CallRegistry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending mirror and history writes. Calls must have ended.
func (r *CallRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	if r.ops != nil {
		close(r.ops)
		r.ops = nil
	}
	r.mu.Unlock()
	r.worker.Wait()
}

func (r *CallRegistry) enqueue(op registryOp) {
	if r.mirror == nil && op.record == nil {
		return
	}
	if r.logs == nil && op.record != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ops == nil {
		return
	}
	select {
	case r.ops <- op:
	default:
		r.log.WithField("call_id", op.callID).Warn("registry queue full, dropping update")
	}
}

func (r *CallRegistry) run(ops <-chan registryOp) {
	defer r.worker.Done()
	for op := range ops {
		r.apply(op)
	}
}

func (r *CallRegistry) apply(op registryOp) {
	log := r.log.WithField("call_id", op.callID)
	switch {
	case op.record != nil:
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := r.logs.Record(ctx, *op.record); err != nil {
			log.WithError(err).Warn("call record not stored")
		}
	case op.snap != nil:
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := r.mirror.SetJSON(ctx, mirrorKeySpace+op.callID, op.snap, mirrorTTL); err != nil {
			log.WithError(err).Debug("registry mirror write failed")
		}
	default:
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := r.mirror.Del(ctx, mirrorKeySpace+op.callID); err != nil {
			log.WithError(err).Debug("registry mirror delete failed")
		}
	}
}
