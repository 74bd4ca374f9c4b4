package coordinationserver

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quorumcast/cluster/internal/coordination"
)

// defaultWatchTimeout bounds how long a single watch call blocks before
// reporting a timeout, so a client whose predecessor never departs does
// not hold a connection open forever.
const defaultWatchTimeout = 30 * time.Second

type znode struct {
	path      string
	data      string
	nodeType  coordination.NodeType
	sessionID string
}

// Tree is an in-memory hierarchical znode store: the server-side half of
// the coordination service contract. It tracks which ephemeral znodes
// belong to which session, and lets callers block on a path's deletion.
type Tree struct {
	mu sync.RWMutex

	nodes       map[string]*znode
	children    map[string]map[string]struct{} // parent path -> set of child names
	seqCounters map[string]uint64              // parent path -> next sequence number
	sessions    map[string]map[string]struct{} // session id -> set of owned ephemeral paths

	watchMu  sync.Mutex
	watchers map[string][]chan struct{}
}

// NewTree returns an empty znode tree.
func NewTree() *Tree {
	return &Tree{
		nodes:       make(map[string]*znode),
		children:    make(map[string]map[string]struct{}),
		seqCounters: make(map[string]uint64),
		sessions:    make(map[string]map[string]struct{}),
		watchers:    make(map[string][]chan struct{}),
	}
}

// OpenSession registers a new session id, returning nothing to track
// server-side beyond the id itself; ephemeral ownership accrues as the
// session creates ephemeral znodes.
func (t *Tree) OpenSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; !ok {
		t.sessions[sessionID] = make(map[string]struct{})
	}
}

// ErrExists indicates a Create call targeted an already-existing
// persistent or ephemeral (non-sequential) path.
var ErrExists = fmt.Errorf("znode already exists")

// Create adds a znode at p (or, for EphemeralSequential, at p with a
// server-assigned numeric suffix) and returns the actual path created.
func (t *Tree) Create(p, data string, nodeType coordination.NodeType, sessionID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	actual := p
	if nodeType == coordination.EphemeralSequential {
		parent := strings.TrimRight(p, "/")
		seq := t.seqCounters[parent]
		t.seqCounters[parent] = seq + 1
		actual = fmt.Sprintf("%s%010d", p, seq)
	}

	if _, exists := t.nodes[actual]; exists {
		return "", ErrExists
	}

	t.nodes[actual] = &znode{path: actual, data: data, nodeType: nodeType, sessionID: sessionID}
	t.addChildLocked(actual)

	if nodeType != coordination.Persistent && sessionID != "" {
		if _, ok := t.sessions[sessionID]; !ok {
			t.sessions[sessionID] = make(map[string]struct{})
		}
		t.sessions[sessionID][actual] = struct{}{}
	}

	return actual, nil
}

func (t *Tree) addChildLocked(p string) {
	parent := path.Dir(p)
	name := path.Base(p)
	if _, ok := t.children[parent]; !ok {
		t.children[parent] = make(map[string]struct{})
	}
	t.children[parent][name] = struct{}{}
}

func (t *Tree) removeChildLocked(p string) {
	parent := path.Dir(p)
	name := path.Base(p)
	if set, ok := t.children[parent]; ok {
		delete(set, name)
	}
}

// Get returns a znode's data.
func (t *Tree) Get(p string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[p]
	if !ok {
		return "", false
	}
	return n.data, true
}

// Children returns the direct child names of p, sorted.
func (t *Tree) Children(p string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	set, ok := t.children[p]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete removes a znode and notifies anyone watching it.
func (t *Tree) Delete(p string) {
	t.mu.Lock()
	n, ok := t.nodes[p]
	if ok {
		delete(t.nodes, p)
		t.removeChildLocked(p)
		if n.sessionID != "" {
			if owned, ok := t.sessions[n.sessionID]; ok {
				delete(owned, p)
			}
		}
	}
	t.mu.Unlock()

	t.notifyDeleted(p)
}

// CloseSession deletes every ephemeral znode owned by sessionID.
func (t *Tree) CloseSession(sessionID string) {
	t.mu.Lock()
	owned := t.sessions[sessionID]
	paths := make([]string, 0, len(owned))
	for p := range owned {
		paths = append(paths, p)
	}
	delete(t.sessions, sessionID)
	t.mu.Unlock()

	for _, p := range paths {
		t.Delete(p)
	}
}

// Watch blocks until p is deleted, ctx is done, or defaultWatchTimeout
// elapses, whichever comes first.
func (t *Tree) Watch(ctx context.Context, p string) (deleted, timedOut bool) {
	t.mu.RLock()
	_, exists := t.nodes[p]
	t.mu.RUnlock()
	if !exists {
		return true, false
	}

	ch := make(chan struct{}, 1)
	t.watchMu.Lock()
	t.watchers[p] = append(t.watchers[p], ch)
	t.watchMu.Unlock()

	timer := time.NewTimer(defaultWatchTimeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true, false
	case <-timer.C:
		return false, true
	case <-ctx.Done():
		return false, false
	}
}

func (t *Tree) notifyDeleted(p string) {
	t.watchMu.Lock()
	chans := t.watchers[p]
	delete(t.watchers, p)
	t.watchMu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
