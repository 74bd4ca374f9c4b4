package clock

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quorumcast/cluster/internal/message"
	"github.com/sirupsen/logrus"
)

// MaxClockSkewMs is the physical-clock divergence, in milliseconds, beyond
// which DetectSkew reports a peer as untrustworthy.
const MaxClockSkewMs = 1000

// PeerTimeFunc returns a peer's current physical timestamp (epoch millis).
// Swappable for testing; the default implementation opens no real
// connection and instead simulates a network round trip, matching the
// original system's single-process demo behavior until the transport
// package is wired in as the live implementation.
type PeerTimeFunc func(peer string) (int64, error)

// Service is a single node's hybrid logical clock: a physical offset
// nudged by SynchronizeClocks and a strictly increasing logical counter.
// Safe for concurrent use.
type Service struct {
	nodeID string
	log    *logrus.Entry

	clockOffset int64 // atomic, milliseconds added to time.Now()
	logicalTime int64 // atomic

	mu           sync.RWMutex
	peerTimeFunc PeerTimeFunc
}

// NewService returns a Service with zero offset and logical time 0.
func NewService(nodeID string, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Service{nodeID: nodeID, log: log.WithField("component", "clock")}
	s.peerTimeFunc = s.simulatePeerTimeRequest
	return s
}

// SetPeerTimeFunc overrides how SynchronizeClocks fetches a peer's
// physical time. Intended for tests and for wiring in the real transport.
func (s *Service) SetPeerTimeFunc(fn PeerTimeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerTimeFunc = fn
}

func (s *Service) peerTime(peer string) (int64, error) {
	s.mu.RLock()
	fn := s.peerTimeFunc
	s.mu.RUnlock()
	return fn(peer)
}

// simulatePeerTimeRequest stands in for a real RPC: it sleeps a short
// jittered delay then returns the local wall clock perturbed by up to
// +/-100ms, mirroring the original demo's network simulation.
func (s *Service) simulatePeerTimeRequest(peer string) (int64, error) {
	time.Sleep(time.Duration(10+rand.Intn(51)) * time.Millisecond)
	jitter := rand.Intn(201) - 100
	return time.Now().UnixMilli() + int64(jitter), nil
}

// SynchronizeClocks polls each peer's physical time and sets clockOffset to
// the average of (peerTime - localTime) across peers that answered. Peers
// whose PeerTimeFunc returns an error are skipped. A nil or empty peer list
// leaves the offset unchanged.
func (s *Service) SynchronizeClocks(peers []string) {
	if len(peers) == 0 {
		return
	}

	var sum int64
	var count int64
	for _, peer := range peers {
		localBefore := time.Now().UnixMilli()
		peerTs, err := s.peerTime(peer)
		if err != nil {
			s.log.WithError(err).WithField("peer", peer).Warn("clock sync: peer unreachable")
			continue
		}
		sum += peerTs - localBefore
		count++
	}

	if count == 0 {
		s.log.Warn("clock sync: no peers responded, offset unchanged")
		return
	}

	offset := sum / count
	atomic.StoreInt64(&s.clockOffset, offset)
	s.log.WithField("offset_ms", offset).WithField("peers", count).Debug("clock sync complete")
}

// CurrentTimestamp returns the local wall clock adjusted by the last
// computed offset.
func (s *Service) CurrentTimestamp() int64 {
	return time.Now().UnixMilli() + atomic.LoadInt64(&s.clockOffset)
}

// NextLogicalTime atomically increments and returns the logical counter.
func (s *Service) NextLogicalTime() int64 {
	return atomic.AddInt64(&s.logicalTime, 1)
}

// CurrentLogicalTime returns the logical counter without advancing it.
func (s *Service) CurrentLogicalTime() int64 {
	return atomic.LoadInt64(&s.logicalTime)
}

// OnReceive folds a remote message's timestamps into the local logical
// clock, unconditionally advancing to max(local, remote)+1 regardless of
// whether the remote physical timestamp is ahead or behind the local one.
func (s *Service) OnReceive(remotePhysicalTS, remoteLogicalTS int64) int64 {
	for {
		local := atomic.LoadInt64(&s.logicalTime)
		next := local
		if remoteLogicalTS > next {
			next = remoteLogicalTS
		}
		next++
		if atomic.CompareAndSwapInt64(&s.logicalTime, local, next) {
			return next
		}
	}
}

// DetectSkew reports whether a peer's physical timestamp differs from the
// local adjusted clock by more than MaxClockSkewMs.
func (s *Service) DetectSkew(remoteTS int64, source string) bool {
	diff := s.CurrentTimestamp() - remoteTS
	if diff < 0 {
		diff = -diff
	}
	skewed := diff > MaxClockSkewMs
	if skewed {
		s.log.WithField("source", source).WithField("skew_ms", diff).Warn("clock skew detected")
	}
	return skewed
}

// CorrectTimestamp stamps m with the current adjusted physical time and
// the next logical time, used when a message's own timestamps are deemed
// unreliable (e.g. after DetectSkew flags its origin).
func (s *Service) CorrectTimestamp(m *message.Message) {
	m.SetPhysicalTS(s.CurrentTimestamp())
	m.SetLogicalTS(s.NextLogicalTime())
}

// Stamp sets m's physical and logical timestamps from the current clock
// state without forcing a logical increment check against any remote
// value; used for locally originated messages.
func (s *Service) Stamp(m *message.Message) {
	m.SetPhysicalTS(s.CurrentTimestamp())
	m.SetLogicalTS(s.NextLogicalTime())
}
