package replication

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quorumcast/cluster/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	writeJitterMinMs = 40
	writeJitterMaxMs = 160
	writeFailureRate = 0.08

	readJitterMinMs = 25
	readJitterMaxMs = 120
	readMissRate    = 0.05

	quorumDeadline = 2 * time.Second
)

// Engine is the quorum write/read replication engine for a fixed set of N
// simulated replicas, each backed by its own storage.Store.
type Engine struct {
	nodeCount   int
	writeQuorum int
	readQuorum  int

	replicas   []storage.Store
	stabilized storage.Store

	dedupMu sync.Mutex
	dedup   map[string]struct{}

	dispatches int64 // atomic, replica write dispatches issued

	writeFailRate float64
	readMissRate  float64

	ctx    context.Context
	cancel context.CancelFunc

	log *logrus.Entry
}

// New constructs an Engine for nodeCount replicas (must be >= 1).
// writeQuorum = readQuorum = floor(nodeCount/2) + 1.
func New(nodeCount int, log *logrus.Entry) *Engine {
	if nodeCount < 1 {
		nodeCount = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	replicas := make([]storage.Store, nodeCount)
	for i := range replicas {
		replicas[i] = storage.NewMemoryStore()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		nodeCount:     nodeCount,
		writeQuorum:   nodeCount/2 + 1,
		readQuorum:    nodeCount/2 + 1,
		replicas:      replicas,
		stabilized:    storage.NewMemoryStore(),
		dedup:         make(map[string]struct{}),
		writeFailRate: writeFailureRate,
		readMissRate:  readMissRate,
		ctx:           ctx,
		cancel:        cancel,
		log:           log.WithField("component", "replication"),
	}
}

// SetFaultRates overrides the simulated per-replica write failure and read
// miss probabilities, for tests that need deterministic replicas.
func (e *Engine) SetFaultRates(writeFail, readMiss float64) {
	e.writeFailRate = writeFail
	e.readMissRate = readMiss
}

// Shutdown cancels any in-flight write/read dispatches. Safe to call more
// than once.
func (e *Engine) Shutdown() {
	e.cancel()
}

func (e *Engine) isDuplicate(id string) bool {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()
	_, ok := e.dedup[id]
	return ok
}

func (e *Engine) markDeduped(id string) {
	e.dedupMu.Lock()
	defer e.dedupMu.Unlock()
	e.dedup[id] = struct{}{}
}

// WriteMessage replicates (id, content) to a write quorum of replicas and,
// on success, installs it in the stabilized store. Returns false if id is
// blank or content is empty, or if a write quorum could not be reached
// within the deadline. A previously written id is idempotently accepted.
func (e *Engine) WriteMessage(id, content string) bool {
	if strings.TrimSpace(id) == "" || content == "" {
		return false
	}
	if e.isDuplicate(id) {
		return true
	}

	ctx, cancel := context.WithTimeout(e.ctx, quorumDeadline)
	defer cancel()

	results := make(chan bool, e.nodeCount)
	for i := 0; i < e.nodeCount; i++ {
		replica := e.replicas[i]
		atomic.AddInt64(&e.dispatches, 1)
		go func() {
			results <- e.simulateWrite(ctx, replica, id, content)
		}()
	}

	successes := 0
	for i := 0; i < e.nodeCount; i++ {
		select {
		case ok := <-results:
			if ok {
				successes++
				if successes >= e.writeQuorum {
					e.stabilized.Put(id, content)
					e.markDeduped(id)
					return true
				}
			}
		case <-ctx.Done():
			e.log.WithField("id", id).Warn("write quorum deadline exceeded")
			return false
		}
	}
	return false
}

func (e *Engine) simulateWrite(ctx context.Context, replica storage.Store, id, content string) bool {
	delay := time.Duration(writeJitterMinMs+rand.Intn(writeJitterMaxMs-writeJitterMinMs+1)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return false
	}

	if rand.Float64() < e.writeFailRate {
		return false
	}
	return replica.Put(id, content)
}

// readResult carries a replica's answer plus arrival order, for
// first-seen tie-breaking during plurality resolution.
type readResult struct {
	value string
	ok    bool
	order int
}

// ReadMessage queries a read quorum of replicas (falling back to the
// stabilized store when a replica reports a simulated miss) and returns
// the plurality value among quorum responses, or ("", false) if fewer
// than readQuorum replicas responded within the deadline.
func (e *Engine) ReadMessage(id string) (string, bool) {
	ctx, cancel := context.WithTimeout(e.ctx, quorumDeadline)
	defer cancel()

	results := make(chan readResult, e.nodeCount)
	for i := 0; i < e.nodeCount; i++ {
		replica := e.replicas[i]
		idx := i
		go func() {
			v, ok := e.simulateRead(ctx, replica, id)
			results <- readResult{value: v, ok: ok, order: idx}
		}()
	}

	collected := make([]readResult, 0, e.nodeCount)
	for i := 0; i < e.nodeCount; i++ {
		select {
		case r := <-results:
			if r.ok {
				collected = append(collected, r)
				if len(collected) >= e.readQuorum {
					return resolvePlurality(collected), true
				}
			}
		case <-ctx.Done():
			e.log.WithField("id", id).Warn("read quorum deadline exceeded")
			if len(collected) >= e.readQuorum {
				return resolvePlurality(collected), true
			}
			return "", false
		}
	}

	if len(collected) < e.readQuorum {
		return "", false
	}
	return resolvePlurality(collected), true
}

func (e *Engine) simulateRead(ctx context.Context, replica storage.Store, id string) (string, bool) {
	delay := time.Duration(readJitterMinMs+rand.Intn(readJitterMaxMs-readJitterMinMs+1)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", false
	}

	// A replica that misses (simulated or genuinely empty) answers from
	// the stabilized store instead. A replica that never participated in
	// the write can therefore still "see" a stabilized value.
	if rand.Float64() < e.readMissRate {
		return e.stabilized.Get(id)
	}

	if v, ok := replica.Get(id); ok {
		return v, true
	}
	return e.stabilized.Get(id)
}

// resolvePlurality returns the value with the highest vote count among
// results, breaking ties by whichever value was first seen (lowest
// order among its votes).
func resolvePlurality(results []readResult) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for _, r := range results {
		counts[r.value]++
		if _, ok := firstSeen[r.value]; !ok {
			firstSeen[r.value] = r.order
		}
	}

	var best string
	bestCount := -1
	bestOrder := -1
	for value, count := range counts {
		order := firstSeen[value]
		if count > bestCount || (count == bestCount && order < bestOrder) {
			best = value
			bestCount = count
			bestOrder = order
		}
	}
	return best
}

// StabilizedCount returns how many messages have reached quorum and been
// installed in the stabilized store.
func (e *Engine) StabilizedCount() int {
	return e.stabilized.Len()
}

// ReplicaDispatches returns the total number of simulated replica writes
// issued so far. A deduplicated write issues none.
func (e *Engine) ReplicaDispatches() int64 {
	return atomic.LoadInt64(&e.dispatches)
}

// Stats reports the configured quorum sizes, for diagnostics and metrics.
func (e *Engine) Stats() string {
	return fmt.Sprintf("N=%d writeQuorum=%d readQuorum=%d", e.nodeCount, e.writeQuorum, e.readQuorum)
}
