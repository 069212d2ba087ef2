// Package sync drains the local outbox against the remote backend.
//
// A drain walks live entries in sequence order and sends them one at a
// time. Acknowledged entries are removed; the first failure below the retry
// ceiling stops the drain so later entries never overtake it. Entries past
// the ceiling are dead-lettered together with everything queued behind them
// for the same record.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/marcus/till/internal/db"
	"github.com/marcus/till/internal/models"
	"github.com/marcus/till/internal/sanitize"
	"github.com/marcus/till/internal/syncclient"
	"golang.org/x/sync/singleflight"
)

// Engine is the sync engine. It is safe for concurrent use.
type Engine struct {
	store   *db.DB
	sender  Sender
	cfg     Config
	metrics *Metrics
	log     *slog.Logger

	flight singleflight.Group

	mu        stdsync.Mutex
	status    Status
	listeners map[int]func(Status)
	nextID    int
}

// New creates an engine over store that delivers through sender. metrics
// and logger may be nil.
func New(store *db.DB, sender Sender, cfg Config, metrics *Metrics, logger *slog.Logger) *Engine {
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = DefaultRetryCeiling
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = DefaultEntryTimeout
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		sender:    sender,
		cfg:       cfg,
		metrics:   metrics,
		log:       logger,
		status:    StatusIdle,
		listeners: make(map[int]func(Status)),
	}
}

// Status returns the current aggregate state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// OnStatus registers fn for every state change and returns a function that
// removes it. Listeners run on the goroutine that changed the state.
func (e *Engine) OnStatus(fn func(Status)) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) setStatus(s Status) {
	e.mu.Lock()
	if e.status == s {
		e.mu.Unlock()
		return
	}
	e.status = s
	fns := make([]func(Status), 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	e.metrics.setStatus(s)
	for _, fn := range fns {
		fn(s)
	}
}

// Sync drains the outbox once. Calls that arrive while a drain is running
// join it and receive its result instead of starting another. Cancelling
// ctx stops waiting but never interrupts the drain itself.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	ch := e.flight.DoChan("drain", func() (any, error) {
		return e.drain(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(Result)
		return res, r.Err
	case <-ctx.Done():
		return Result{Status: e.Status()}, ctx.Err()
	}
}

// Trigger is the entry point for connectivity changes and timer ticks. A
// settled engine with an empty outbox is left alone; otherwise it returns
// to idle and drains.
func (e *Engine) Trigger(ctx context.Context) {
	n, err := e.store.CountPending(ctx)
	if err != nil {
		e.log.Error("sync trigger: count outbox", "err", err)
		return
	}
	switch st := e.Status(); {
	case st == StatusSyncing:
		return
	case n == 0 && (st == StatusSynced || st == StatusIdle):
		return
	}
	e.setStatus(StatusIdle)
	if _, err := e.Sync(ctx); err != nil {
		e.log.Debug("sync trigger", "err", err)
	}
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDropped
	outcomeRemoteWon
	outcomeForced
	outcomeDead
	outcomeRetry
)

// entityRef identifies one record across outbox entries.
type entityRef struct {
	collection models.Collection
	localKey   int64
}

func refOf(e db.Entry) entityRef {
	return entityRef{collection: e.Collection(), localKey: e.LocalKey}
}

func sequences(group []db.Entry) []int64 {
	seqs := make([]int64, len(group))
	for i, e := range group {
		seqs[i] = e.Sequence
	}
	return seqs
}

// foldGroup returns the entries sent as one mutation: a CREATE or UPDATE
// followed by the consecutive UPDATEs of the same record. The backend only
// needs the final state, which the last entry carries.
func foldGroup(entries []db.Entry) []db.Entry {
	head := entries[0]
	n := 1
	if head.Action.Kind != models.ActionDelete {
		for n < len(entries) && entries[n].Action.Kind == models.ActionUpdate && refOf(entries[n]) == refOf(head) {
			n++
		}
	}
	return entries[:n]
}

// drainState is what one drain learns as it goes.
type drainState struct {
	deviceID string
	acked    map[entityRef]string // server keys acknowledged during this drain
	blocked  map[entityRef]bool   // records with a dead-lettered entry
}

func (e *Engine) drain(ctx context.Context) (Result, error) {
	if e.cfg.Online != nil && !e.cfg.Online() {
		e.setStatus(StatusOffline)
		return Result{Status: StatusOffline}, nil
	}
	e.setStatus(StatusSyncing)

	res, err := e.drainEntries(ctx)

	if n, cerr := e.store.CountPending(ctx); cerr == nil {
		res.Remaining = n
		e.metrics.outboxDepth.Set(float64(n))
	}
	res.Status = StatusSynced
	if err != nil {
		res.Status = StatusError
	}
	if res.DeadLettered > 0 {
		// stranded mutations are not a clean sync
		res.Status = StatusError
		e.log.Warn("sync: entries dead-lettered", "count", res.DeadLettered)
	}
	if serr := e.store.SetSyncState(ctx, string(res.Status), time.Now()); serr != nil {
		e.log.Warn("sync: record state", "err", serr)
	}
	e.setStatus(res.Status)
	return res, err
}

func (e *Engine) drainEntries(ctx context.Context) (Result, error) {
	var res Result
	entries, err := e.store.PendingEntries(ctx)
	if err != nil {
		return res, fmt.Errorf("read outbox: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}
	deviceID, err := e.store.DeviceID(ctx)
	if err != nil {
		return res, fmt.Errorf("device id: %w", err)
	}
	dead, err := e.store.DeadEntries(ctx)
	if err != nil {
		return res, fmt.Errorf("read dead letters: %w", err)
	}
	d := &drainState{
		deviceID: deviceID,
		acked:    make(map[entityRef]string),
		blocked:  make(map[entityRef]bool, len(dead)),
	}
	for _, de := range dead {
		d.blocked[refOf(de)] = true
	}

	for i := 0; i < len(entries); {
		group := foldGroup(entries[i:])
		i += len(group)

		if d.blocked[refOf(group[0])] {
			if err := e.deadLetter(ctx, group, errors.New("an earlier entry for this record is dead-lettered")); err != nil {
				res.FailedSequence = group[0].Sequence
				return res, err
			}
			res.DeadLettered += len(group)
			continue
		}

		out, err := e.process(ctx, d, group)
		switch out {
		case outcomeSent:
			res.Sent += len(group)
		case outcomeForced:
			res.Sent += len(group)
			res.Forced++
		case outcomeRemoteWon:
			res.Conflicts++
		case outcomeDropped:
			res.Dropped += len(group)
		case outcomeDead:
			d.blocked[refOf(group[0])] = true
			res.DeadLettered += len(group)
		}
		if err != nil {
			res.FailedSequence = group[0].Sequence
			return res, err
		}
	}
	return res, nil
}

// serverKeyFor finds the backend key of the group's record: from this
// drain's acknowledgements, the stored record, or the payload snapshot
// (a DELETE's record is already gone).
func (e *Engine) serverKeyFor(ctx context.Context, d *drainState, group []db.Entry) (string, error) {
	head, last := group[0], group[len(group)-1]
	ref := refOf(head)
	if k, ok := d.acked[ref]; ok {
		return k, nil
	}
	var key string
	err := e.store.RunTx(ctx, []models.Collection{ref.collection}, db.ReadOnly, func(tx *db.Tx) error {
		var err error
		key, _, err = tx.ServerKey(ref.collection, ref.localKey)
		return err
	})
	if err != nil {
		return "", err
	}
	if key == "" {
		key = readPayload(last.Payload).ServerKey
	}
	return key, nil
}

func (e *Engine) process(ctx context.Context, d *drainState, group []db.Entry) (outcome, error) {
	head, last := group[0], group[len(group)-1]

	serverKey, err := e.serverKeyFor(ctx, d, group)
	if err != nil {
		return outcomeRetry, err
	}

	if head.Action.Kind == models.ActionDelete && serverKey == "" {
		// the backend never saw this record
		if err := e.remove(ctx, group); err != nil {
			return outcomeRetry, err
		}
		e.log.Debug("sync: dropped delete of unsynced record", "action", head.Action, "local_key", head.LocalKey)
		return outcomeDropped, nil
	}

	m := syncclient.Mutation{
		MutationID: last.MutationID,
		DeviceID:   d.deviceID,
		Action:     head.Action.String(),
		Payload:    withServerKey(last.Payload, serverKey),
	}
	resp, err := e.send(ctx, m)
	if err != nil {
		return e.failed(ctx, group, err)
	}
	if resp.Conflict != nil {
		return e.resolveConflict(ctx, d, group, m, serverKey, resp.Conflict)
	}
	if err := e.acknowledge(ctx, d, group, resp.ServerKey, serverKey); err != nil {
		return outcomeRetry, err
	}
	return outcomeSent, nil
}

type sendResult struct {
	resp *syncclient.MutationResponse
	err  error
}

// send delivers m within the per-entry timeout, even if the sender ignores
// its context.
func (e *Engine) send(ctx context.Context, m syncclient.Mutation) (*syncclient.MutationResponse, error) {
	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.EntryTimeout)
	defer cancel()

	start := time.Now()
	ch := make(chan sendResult, 1)
	go func() {
		resp, err := e.sender.Send(sendCtx, m)
		ch <- sendResult{resp, err}
	}()

	var r sendResult
	select {
	case r = <-ch:
	case <-sendCtx.Done():
		r.err = &syncclient.NetworkError{Op: "send " + m.Action, Err: sendCtx.Err()}
	}
	e.metrics.sendLatency.Observe(time.Since(start).Seconds())

	if r.err == nil && r.resp == nil {
		r.err = &syncclient.RemoteError{Code: "empty_response", Message: "backend returned no verdict"}
	}
	if r.err != nil {
		e.metrics.failed.WithLabelValues(m.Action).Inc()
	}
	return r.resp, r.err
}

func (e *Engine) remove(ctx context.Context, group []db.Entry) error {
	return e.store.RunTx(ctx, nil, db.ReadWrite, func(tx *db.Tx) error {
		_, err := tx.RemoveEntries(sequences(group)...)
		return err
	})
}

// failed counts a failed attempt against the group's head entry.
func (e *Engine) failed(ctx context.Context, group []db.Entry, cause error) (outcome, error) {
	head := group[0]
	attempts, err := e.store.IncrementAttempts(ctx, head.Sequence, cause)
	if errors.Is(err, db.ErrNotFound) {
		// collapsed by a local delete while the send was running
		return outcomeDropped, nil
	}
	if err != nil {
		return outcomeRetry, err
	}
	if attempts > e.cfg.RetryCeiling {
		if err := e.deadLetter(ctx, group, cause); err != nil {
			return outcomeRetry, err
		}
		return outcomeDead, nil
	}
	e.log.Warn("sync: send failed", "seq", head.Sequence, "action", head.Action,
		"attempts", attempts, "err", cause)
	return outcomeRetry, fmt.Errorf("send %s (seq %d): %w", head.Action, head.Sequence, cause)
}

func (e *Engine) deadLetter(ctx context.Context, group []db.Entry, cause error) error {
	if err := e.store.MarkDead(ctx, sequences(group)...); err != nil {
		return err
	}
	e.metrics.deadLettered.Add(float64(len(group)))
	e.log.Warn("sync: dead-lettered", "seq", group[0].Sequence, "action", group[0].Action,
		"local_key", group[0].LocalKey, "entries", len(group), "err", cause)
	return nil
}

// acknowledge removes the group and, for a CREATE, stores the server key on
// the record. A record deleted while its CREATE was on the wire now exists
// remotely, so a DELETE carrying the new key is queued unless one already is.
func (e *Engine) acknowledge(ctx context.Context, d *drainState, group []db.Entry, ackKey, knownKey string) error {
	head, last := group[0], group[len(group)-1]
	ref := refOf(head)
	serverKey := ackKey
	if serverKey == "" {
		serverKey = knownKey
	}

	err := e.store.RunTx(ctx, []models.Collection{ref.collection}, db.ReadWrite, func(tx *db.Tx) error {
		if _, err := tx.RemoveEntries(sequences(group)...); err != nil {
			return err
		}
		if head.Action.Kind != models.ActionCreate || serverKey == "" {
			return nil
		}
		_, exists, err := tx.ServerKey(ref.collection, ref.localKey)
		if err != nil {
			return err
		}
		if exists {
			return tx.SetServerKey(ref.collection, ref.localKey, serverKey)
		}
		queued, err := tx.EntriesFor(ref.collection, ref.localKey)
		if err != nil {
			return err
		}
		for _, q := range queued {
			if q.Action.Kind == models.ActionDelete {
				return nil
			}
		}
		return tx.Append(models.Delete(head.Action.Entity), ref.localKey, withServerKey(last.Payload, serverKey))
	})
	if err != nil {
		return fmt.Errorf("acknowledge seq %d: %w", head.Sequence, err)
	}
	if serverKey != "" {
		d.acked[ref] = serverKey
	}
	e.metrics.sent.WithLabelValues(head.Action.String()).Add(float64(len(group)))
	return nil
}

// resolveConflict applies last-write-wins on updatedAt. A newer remote copy
// replaces the local record and the queued mutation is discarded; otherwise
// the local copy is re-sent once with force set.
func (e *Engine) resolveConflict(ctx context.Context, d *drainState, group []db.Entry, m syncclient.Mutation,
	serverKey string, conflict *syncclient.Conflict) (outcome, error) {
	head, last := group[0], group[len(group)-1]
	ref := refOf(head)
	local := readPayload(last.Payload)

	if remoteNewer(local.UpdatedAt, conflict.RemoteUpdatedAt) {
		if err := e.applyRemote(ctx, d, group, serverKey, conflict); err != nil {
			return outcomeRetry, err
		}
		e.metrics.conflicts.WithLabelValues("remote").Inc()
		e.log.Info("sync: conflict resolved, remote copy kept", "action", head.Action,
			"local_key", ref.localKey, "local_updated_at", local.UpdatedAt,
			"remote_updated_at", conflict.RemoteUpdatedAt)
		return outcomeRemoteWon, nil
	}

	m.Force = true
	resp, err := e.send(ctx, m)
	if err != nil {
		return e.failed(ctx, group, err)
	}
	if resp.Conflict != nil {
		return e.failed(ctx, group, &syncclient.RemoteError{Status: 409, Code: "conflict",
			Message: "forced write still conflicts"})
	}
	if err := e.acknowledge(ctx, d, group, resp.ServerKey, serverKey); err != nil {
		return outcomeRetry, err
	}
	e.metrics.conflicts.WithLabelValues("local").Inc()
	e.log.Info("sync: conflict resolved, local copy pushed", "action", head.Action,
		"local_key", ref.localKey, "local_updated_at", local.UpdatedAt,
		"remote_updated_at", conflict.RemoteUpdatedAt)
	lerr := e.store.RunTx(ctx, nil, db.ReadWrite, func(tx *db.Tx) error {
		return tx.LogConflict(db.Conflict{
			Collection: ref.collection,
			LocalKey:   ref.localKey,
			ServerKey:  d.acked[ref],
			Resolution: "local_wins",
			LocalData:  last.Payload,
			RemoteData: conflict.RemotePayload,
		})
	})
	if lerr != nil {
		e.log.Warn("sync: log conflict", "err", lerr)
	}
	return outcomeForced, nil
}

// applyRemote overwrites (or restores) the local record with the remote
// copy, or removes it when the remote copy is a tombstone. Fields that never
// leave the device are kept from the local record. The group is
// dropped and the conflict logged in the same transaction.
func (e *Engine) applyRemote(ctx context.Context, d *drainState, group []db.Entry, serverKey string,
	conflict *syncclient.Conflict) error {
	ref := refOf(group[0])
	remoteKey := readPayload(conflict.RemotePayload).ServerKey
	if remoteKey == "" {
		remoteKey = serverKey
	}

	err := e.store.RunTx(ctx, []models.Collection{ref.collection}, db.ReadWrite, func(tx *db.Tx) error {
		localData, err := tx.GetRaw(ref.collection, ref.localKey)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if _, err := tx.RemoveEntries(sequences(group)...); err != nil {
			return err
		}
		if len(conflict.RemotePayload) > 0 && string(conflict.RemotePayload) != "null" {
			data, err := sanitize.Restore(ref.collection, conflict.RemotePayload, localData)
			if err != nil {
				return err
			}
			if _, err := tx.PutRaw(ref.collection, ref.localKey, remoteKey, data); err != nil {
				return err
			}
		} else if localData != nil {
			// deleted remotely
			if err := tx.Delete(ref.collection, ref.localKey); err != nil {
				return err
			}
		}
		return tx.LogConflict(db.Conflict{
			Collection: ref.collection,
			LocalKey:   ref.localKey,
			ServerKey:  remoteKey,
			Resolution: "remote_wins",
			LocalData:  localData,
			RemoteData: conflict.RemotePayload,
		})
	})
	if err != nil {
		return fmt.Errorf("apply remote copy: %w", err)
	}
	if remoteKey != "" {
		d.acked[ref] = remoteKey
	}
	return nil
}
