package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IsLeader is 1 when this node currently believes itself the leader.
	IsLeader = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quorumcast",
		Subsystem: "coordination",
		Name:      "is_leader",
		Help:      "Whether this node is the cluster leader (1=leader, 0=follower)",
	})

	// PeerUp is 1 for peers the failure detector currently considers up.
	PeerUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quorumcast",
		Subsystem: "failuredetector",
		Name:      "peer_up",
		Help:      "Whether a peer is currently considered up (1) or down (0)",
	}, []string{"peer"})

	// WriteLatencySeconds observes quorum write completion latency.
	WriteLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quorumcast",
		Subsystem: "replication",
		Name:      "write_latency_seconds",
		Help:      "Latency of quorum writes",
		Buckets:   prometheus.DefBuckets,
	})

	// ReadLatencySeconds observes quorum read completion latency.
	ReadLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quorumcast",
		Subsystem: "replication",
		Name:      "read_latency_seconds",
		Help:      "Latency of quorum reads",
		Buckets:   prometheus.DefBuckets,
	})

	// WriteQuorumFailuresTotal counts writes that missed quorum within
	// the deadline.
	WriteQuorumFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quorumcast",
		Subsystem: "replication",
		Name:      "write_quorum_failures_total",
		Help:      "Total writes that failed to reach quorum before the deadline",
	})

	// LogicalClockValue tracks the node's current logical clock value.
	LogicalClockValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quorumcast",
		Subsystem: "clock",
		Name:      "logical_time",
		Help:      "Current value of this node's logical clock",
	})

	// ClockSkewDetectedTotal counts DetectSkew calls that reported skew.
	ClockSkewDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quorumcast",
		Subsystem: "clock",
		Name:      "skew_detected_total",
		Help:      "Total times a peer's physical clock was flagged as skewed",
	}, []string{"source"})

	// SequencerQueueDepth tracks buffered (not-yet-deliverable) messages
	// per conversation.
	SequencerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quorumcast",
		Subsystem: "sequencer",
		Name:      "queue_depth",
		Help:      "Number of buffered messages awaiting in-order delivery",
	}, []string{"conversation_id"})
)
