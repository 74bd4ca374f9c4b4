package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quorumcast/cluster/internal/clock"
	"github.com/quorumcast/cluster/internal/config"
	"github.com/quorumcast/cluster/internal/coordination"
	"github.com/quorumcast/cluster/internal/failuredetector"
	"github.com/quorumcast/cluster/internal/message"
	"github.com/quorumcast/cluster/internal/metrics"
	"github.com/quorumcast/cluster/internal/replication"
	"github.com/quorumcast/cluster/internal/sequencer"
	"github.com/quorumcast/cluster/internal/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Node aggregates one cluster member's five owned components plus its
// line transport. Callers construct one Node per cluster member.
type Node struct {
	id  string
	cfg *config.NodeConfig
	log *logrus.Entry

	Coordinator *coordination.Coordinator
	Detector    *failuredetector.Detector
	Replication *replication.Engine
	Clock       *clock.Service
	Sequencer   *sequencer.Sequencer
	Transport   *transport.Server
	Metrics     *metrics.Server

	mu sync.RWMutex
}

// New wires every component for nodeID per cfg, but does not start
// anything (use Start for that).
func New(cfg *config.NodeConfig, log *logrus.Entry) *Node {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "node")

	n := &Node{
		id:          cfg.NodeID,
		cfg:         cfg,
		log:         log,
		Coordinator: coordination.New(cfg.CoordinatorAddr, cfg.NodeID, log),
		Replication: replication.New(cfg.TotalNodes, log),
		Clock:       clock.NewService(cfg.NodeID, log),
	}
	n.Sequencer = sequencer.New(n.onDeliver, log)
	n.Detector = failuredetector.New(n, log)
	n.Transport = transport.NewServer(n.handleWireLine, log)
	n.Metrics = metrics.NewServer(cfg.MetricsAddr, log)
	return n
}

// ID returns this node's id.
func (n *Node) ID() string { return n.id }

func (n *Node) onDeliver(m *message.Message) {
	n.log.WithField("message", m.String()).Info("delivered")
}

// Start connects the coordinator, blocks until an initial leader is
// known, then starts the transport, metrics and failure-detector
// background workers.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Coordinator.Connect(ctx); err != nil {
		return fmt.Errorf("node: coordinator connect: %w", err)
	}
	if err := n.Coordinator.WaitForLeadership(ctx); err != nil {
		return fmt.Errorf("node: wait for leadership: %w", err)
	}

	if err := n.Transport.Start(n.cfg.ListenAddr); err != nil {
		return fmt.Errorf("node: transport start: %w", err)
	}

	n.Metrics.Start()
	n.Detector.Start(ctx.Done(), n.peerAddrs)
	n.Clock.SynchronizeClocks(n.peerAddrs())

	n.updateLeaderMetric()
	return nil
}

// Stop shuts every owned component down, in roughly the reverse order
// Start brought them up.
func (n *Node) Stop(ctx context.Context) {
	n.Detector.Stop()
	n.Transport.Stop()
	n.Replication.Shutdown()
	n.Metrics.Stop()
	if err := n.Coordinator.Close(ctx); err != nil {
		n.log.WithError(err).Warn("coordinator close failed")
	}
}

// peerAddrs returns a deterministically ordered snapshot of configured
// peer addresses, so the failure detector and clock sync probe peers in a
// stable order run to run.
func (n *Node) peerAddrs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	addrs := make([]string, 0, len(n.cfg.PeerAddrs))
	for _, addr := range n.cfg.PeerAddrs {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

// OnNodeDown implements failuredetector.Listener.
func (n *Node) OnNodeDown(peer string) {
	n.log.WithField("peer", peer).Warn("peer down")
	metrics.PeerUp.WithLabelValues(peer).Set(0)
}

// OnNodeUp implements failuredetector.Listener.
func (n *Node) OnNodeUp(peer string) {
	n.log.WithField("peer", peer).Info("peer up")
	metrics.PeerUp.WithLabelValues(peer).Set(1)
}

func (n *Node) updateLeaderMetric() {
	if n.Coordinator.IsLeader() {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
}

// handleWireLine is the transport.Handler invoked for every application
// message line this node's server receives from a peer.
func (n *Node) handleWireLine(line string) {
	sender, receiver, content, err := decodeWireMessage(line)
	if err != nil {
		n.log.WithError(err).Warn("dropping malformed wire message")
		return
	}
	if _, err := n.ingest(sender, receiver, content); err != nil {
		n.log.WithError(err).Warn("failed to ingest forwarded message")
	}
}

// SendMessage is the client-facing entry point: if this node is the
// leader (or no leader is yet known), it processes the message locally;
// otherwise it forwards the raw content to the current leader over the
// transport, falling back to local processing if that forward fails.
func (n *Node) SendMessage(sender, receiver, content string) (*message.Message, error) {
	leaderID, hasLeader := n.Coordinator.CurrentLeader()

	if n.Coordinator.IsLeader() || !hasLeader {
		return n.ingest(sender, receiver, content)
	}

	addr, ok := n.cfg.PeerAddrs[leaderID]
	if !ok {
		n.log.WithField("leader", leaderID).Warn("no known address for leader, processing locally")
		return n.ingest(sender, receiver, content)
	}

	if err := transport.SendMessage(addr, encodeWireMessage(sender, receiver, content)); err != nil {
		n.log.WithError(err).WithField("leader", leaderID).Warn("forward to leader failed, processing locally")
		return n.ingest(sender, receiver, content)
	}
	return nil, nil
}

// ReadMessage returns the quorum-read value for a previously accepted
// message id, or ("", false) if a read quorum could not be reached.
func (n *Node) ReadMessage(id string) (string, bool) {
	start := time.Now()
	v, found := n.Replication.ReadMessage(id)
	metrics.ReadLatencySeconds.Observe(time.Since(start).Seconds())
	return v, found
}

// ingest stamps, replicates, records metadata for, and sequences one
// message originating on (or forwarded to) this node.
func (n *Node) ingest(sender, receiver, content string) (*message.Message, error) {
	m, err := message.New(sender, receiver, content)
	if err != nil {
		return nil, err
	}
	n.Clock.Stamp(m)
	metrics.LogicalClockValue.Set(float64(n.Clock.CurrentLogicalTime()))

	start := time.Now()
	ok := n.Replication.WriteMessage(m.ID(), content)
	metrics.WriteLatencySeconds.Observe(time.Since(start).Seconds())
	if !ok {
		metrics.WriteQuorumFailuresTotal.Inc()
		return nil, fmt.Errorf("node: write quorum not reached for message %s", m.ShortID())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	metadata := fmt.Sprintf("%s->%s:%d", m.Sender(), m.Receiver(), m.PhysicalTS())
	if err := n.Coordinator.StoreMessageMetadata(ctx, m.ID(), metadata); err != nil {
		n.log.WithError(err).Debug("storeMessageMetadata failed, continuing")
	}

	n.Sequencer.QueueMessage(m)
	convID := message.ConversationID(sender, receiver)
	metrics.SequencerQueueDepth.WithLabelValues(convID).Set(float64(n.Sequencer.PendingCount(convID)))

	return m, nil
}

// ReceiveFromPeer folds a remote message's clock into this node's
// logical clock and flags skew, mirroring the original onReceive path
// before sequencing.
func (n *Node) ReceiveFromPeer(remotePhysicalTS, remoteLogicalTS int64, source string) {
	n.Clock.OnReceive(remotePhysicalTS, remoteLogicalTS)
	if n.Clock.DetectSkew(remotePhysicalTS, source) {
		metrics.ClockSkewDetectedTotal.WithLabelValues(source).Inc()
	}
}
