package coordination

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// State tracks the coordinator's lifecycle:
// DISCONNECTED -> CONNECTING -> REGISTERED -> {LEADER, FOLLOWER} <-> {LEADER, FOLLOWER} -> CLOSED.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateRegistered   State = "REGISTERED"
	StateLeader       State = "LEADER"
	StateFollower     State = "FOLLOWER"
	StateClosed       State = "CLOSED"
)

const candidatePrefix = "candidate-"

// defaultHeartbeatInterval keeps the session alive well inside the
// server's expiry window.
const defaultHeartbeatInterval = 5 * time.Second

// Coordinator is one node's client to the coordination service: it owns
// that node's session, its ephemeral registration, and its leader
// election candidate.
type Coordinator struct {
	baseURL string
	nodeID  string
	log     *logrus.Entry

	mu               sync.RWMutex
	state            State
	sessionID        string
	ownCandidateName string
	currentLeaderID  string

	leaderOnce   sync.Once
	leaderLatch  chan struct{}
	electionCtx  context.Context
	electionStop context.CancelFunc

	heartbeatInterval time.Duration
	heartbeatStop     chan struct{}
	heartbeatWG       sync.WaitGroup
}

// New returns a Coordinator bound to a coordination service at baseURL
// (e.g. "http://localhost:9000") for the given nodeID.
func New(baseURL, nodeID string, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		baseURL:           strings.TrimRight(baseURL, "/"),
		nodeID:            nodeID,
		log:               log.WithField("component", "coordination").WithField("node", nodeID),
		state:             StateDisconnected,
		leaderLatch:       make(chan struct{}),
		heartbeatInterval: defaultHeartbeatInterval,
	}
}

// SetHeartbeatInterval overrides the session keepalive cadence, for tests.
// Must be called before Connect.
func (c *Coordinator) SetHeartbeatInterval(d time.Duration) {
	c.heartbeatInterval = d
}

func (c *Coordinator) url(format string, args ...interface{}) string {
	return c.baseURL + fmt.Sprintf(format, args...)
}

// Connect establishes a session, creates the base persistent paths if
// missing, registers this node's ephemeral znode, enters the leader
// election, and starts the session keepalive. It returns once the node's
// own candidate has been created; use WaitForLeadership to block until an
// authoritative leader exists.
func (c *Coordinator) Connect(ctx context.Context) error {
	if err := c.initSession(ctx); err != nil {
		return err
	}

	c.heartbeatStop = make(chan struct{})
	c.heartbeatWG.Add(1)
	go c.heartbeatLoop()
	return nil
}

// initSession performs one full session bring-up: open session, create
// base paths, register, enter election. Called from Connect and again on
// session expiry.
func (c *Coordinator) initSession(ctx context.Context) error {
	c.setState(StateConnecting)

	var sessResp OpenSessionResponse
	if err := PostJSON(ctx, c.url("/sessions"), OpenSessionRequest{NodeID: c.nodeID}, &sessResp); err != nil {
		return fmt.Errorf("coordination: open session: %w", err)
	}
	c.mu.Lock()
	c.sessionID = sessResp.SessionID
	c.mu.Unlock()

	for _, p := range []string{RootPath, NodesPath, LeaderPath, MessagesPath, ConfigPath} {
		if err := c.createIfNotExists(ctx, p, "", Persistent, ""); err != nil {
			return fmt.Errorf("coordination: init path %s: %w", p, err)
		}
	}

	nodePath := path.Join(NodesPath, c.nodeID)
	if err := c.createIfNotExists(ctx, nodePath, c.nodeID, Ephemeral, c.sessionID); err != nil {
		return fmt.Errorf("coordination: register node: %w", err)
	}

	c.setState(StateRegistered)

	c.mu.Lock()
	c.electionCtx, c.electionStop = context.WithCancel(context.Background())
	c.mu.Unlock()
	return c.participateInElection(ctx)
}

// heartbeatLoop keeps the session alive. A 404 from the server means the
// session expired; the coordinator then tears down its election watch and
// re-initializes from scratch (new session, re-register, re-elect). The
// leader latch is not re-armed across re-initialization.
func (c *Coordinator) heartbeatLoop() {
	defer c.heartbeatWG.Done()
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.heartbeatStop:
			return
		case <-ticker.C:
		}

		c.mu.RLock()
		sessionID := c.sessionID
		c.mu.RUnlock()
		if sessionID == "" {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.heartbeatInterval)
		err := PostJSON(ctx, c.url("/sessions/%s/heartbeat", sessionID), struct{}{}, nil)
		cancel()
		if err == nil {
			continue
		}

		if !strings.Contains(err.Error(), "404") {
			c.log.WithError(err).Debug("session heartbeat failed, will retry")
			continue
		}

		c.log.Warn("session expired, re-initializing")
		c.mu.RLock()
		stop := c.electionStop
		c.mu.RUnlock()
		if stop != nil {
			stop()
		}

		reinitCtx, reinitCancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = c.initSession(reinitCtx)
		reinitCancel()
		if err != nil {
			c.log.WithError(err).Error("session re-initialization failed")
		}
	}
}

func (c *Coordinator) createIfNotExists(ctx context.Context, nodePath, data string, t NodeType, sessionID string) error {
	var resp CreateResponse
	err := PostJSON(ctx, c.url("/znodes"), CreateRequest{Path: nodePath, Data: data, Type: t, SessionID: sessionID}, &resp)
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "409") {
		return nil // already exists, benign
	}
	return err
}

// participateInElection creates this node's ephemeral-sequential leader
// candidate and performs the initial leadership evaluation.
func (c *Coordinator) participateInElection(ctx context.Context) error {
	var resp CreateResponse
	req := CreateRequest{
		Path:      path.Join(LeaderPath, candidatePrefix),
		Data:      c.nodeID,
		Type:      EphemeralSequential,
		SessionID: c.sessionID,
	}
	if err := PostJSON(ctx, c.url("/znodes"), req, &resp); err != nil {
		return fmt.Errorf("coordination: create election candidate: %w", err)
	}

	c.mu.Lock()
	c.ownCandidateName = path.Base(resp.Path)
	c.mu.Unlock()

	return c.evaluateLeadership(ctx)
}

// evaluateLeadership re-lists the leader candidates, determines this
// node's position, and becomes leader or follower accordingly. Followers
// spawn a watch on their immediate predecessor.
func (c *Coordinator) evaluateLeadership(ctx context.Context) error {
	var children ChildrenResponse
	if err := GetJSON(ctx, c.url("/znodes/children?path=%s", LeaderPath), &children); err != nil {
		return fmt.Errorf("coordination: list leader candidates: %w", err)
	}

	names := children.Children
	sort.Strings(names)

	c.mu.RLock()
	own := c.ownCandidateName
	c.mu.RUnlock()

	idx := slices.Index(names, own)
	if idx < 0 {
		// Our candidate vanished underneath us (e.g. reaped with an
		// expired session that raced re-initialization): rejoin the
		// election with a fresh candidate.
		c.log.WithField("candidate", own).Warn("own candidate missing, rejoining election")
		return c.participateInElection(ctx)
	}

	var leaderResp GetResponse
	if err := GetJSON(ctx, c.url("/znodes?path=%s", path.Join(LeaderPath, names[0])), &leaderResp); err != nil {
		return fmt.Errorf("coordination: resolve leader candidate: %w", err)
	}

	if idx == 0 {
		c.becomeLeader(leaderResp.Data)
		return nil
	}

	predecessor := names[idx-1]
	c.becomeFollower(leaderResp.Data)
	c.mu.RLock()
	watchCtx := c.electionCtx
	c.mu.RUnlock()
	go c.watchPredecessor(watchCtx, path.Join(LeaderPath, predecessor))
	return nil
}

func (c *Coordinator) becomeLeader(leaderID string) {
	c.mu.Lock()
	c.state = StateLeader
	c.currentLeaderID = leaderID
	c.mu.Unlock()
	c.log.Info("became leader")
	c.signalLeaderLatch()
}

func (c *Coordinator) becomeFollower(leaderID string) {
	c.mu.Lock()
	c.state = StateFollower
	c.currentLeaderID = leaderID
	c.mu.Unlock()

	c.log.WithField("leader", leaderID).Debug("became follower")
	c.signalLeaderLatch()
}

// signalLeaderLatch closes leaderLatch exactly once per process lifetime;
// the latch is not re-armed after a session-expiry re-election.
func (c *Coordinator) signalLeaderLatch() {
	c.leaderOnce.Do(func() { close(c.leaderLatch) })
}

func (c *Coordinator) watchPredecessor(ctx context.Context, predecessorPath string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var resp WatchResponse
		err := GetJSON(ctx, c.url("/watch?path=%s", predecessorPath), &resp)
		if err != nil {
			c.log.WithError(err).Debug("watch predecessor failed, retrying")
			continue
		}
		if resp.Timeout {
			continue
		}
		if resp.Deleted {
			if err := c.evaluateLeadership(ctx); err != nil {
				c.log.WithError(err).Warn("re-evaluation after predecessor departure failed")
			}
			return
		}
	}
}

// WaitForLeadership blocks until the initial election has produced an
// authoritative leader (self or otherwise), or ctx is cancelled.
func (c *Coordinator) WaitForLeadership(ctx context.Context) error {
	select {
	case <-c.leaderLatch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsLeader reports whether this node currently believes itself to be the
// leader.
func (c *Coordinator) IsLeader() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateLeader
}

// CurrentLeader returns the last-known leader node id. ok is false if no
// leader has been established yet.
func (c *Coordinator) CurrentLeader() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLeaderID, c.currentLeaderID != ""
}

// LiveNodes returns a snapshot of the currently-registered node ids.
func (c *Coordinator) LiveNodes(ctx context.Context) ([]string, error) {
	var children ChildrenResponse
	if err := GetJSON(ctx, c.url("/znodes/children?path=%s", NodesPath), &children); err != nil {
		return nil, fmt.Errorf("coordination: list live nodes: %w", err)
	}
	sort.Strings(children.Children)
	return children.Children, nil
}

// StoreMessageMetadata persists a message's metadata under /messages/<id>.
// It is a no-op when this node is not leader; a duplicate write for the
// same id is treated as success.
func (c *Coordinator) StoreMessageMetadata(ctx context.Context, messageID, payload string) error {
	if !c.IsLeader() {
		return nil
	}
	if err := c.createIfNotExists(ctx, path.Join(MessagesPath, messageID), payload, Persistent, ""); err != nil {
		c.log.WithError(err).WithField("message_id", messageID).Warn("storeMessageMetadata failed")
		return nil
	}
	return nil
}

// State returns the coordinator's current state-machine state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close best-effort deletes this node's session (which removes its owned
// ephemeral znodes server-side) and stops the election watch and session
// keepalive.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatWG.Wait()
		c.heartbeatStop = nil
	}

	c.mu.RLock()
	stop := c.electionStop
	sessionID := c.sessionID
	c.mu.RUnlock()
	if stop != nil {
		stop()
	}

	var err error
	if sessionID != "" {
		err = DeleteJSON(ctx, c.url("/sessions/%s", sessionID))
	}
	c.setState(StateClosed)
	return err
}
