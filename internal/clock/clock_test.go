package clock

import (
	"errors"
	"testing"

	"github.com/quorumcast/cluster/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextLogicalTimeIncrementsMonotonically(t *testing.T) {
	s := NewService("node-1", nil)
	assert.Equal(t, int64(1), s.NextLogicalTime())
	assert.Equal(t, int64(2), s.NextLogicalTime())
	assert.Equal(t, int64(2), s.CurrentLogicalTime())
}

func TestOnReceiveAdvancesPastRemote(t *testing.T) {
	s := NewService("node-1", nil)
	s.NextLogicalTime() // local = 1

	next := s.OnReceive(0, 10)
	assert.Equal(t, int64(11), next)
	assert.Equal(t, int64(11), s.CurrentLogicalTime())
}

func TestOnReceiveAdvancesEvenWhenLocalAhead(t *testing.T) {
	s := NewService("node-1", nil)
	for i := 0; i < 5; i++ {
		s.NextLogicalTime()
	}
	next := s.OnReceive(0, 2)
	assert.Equal(t, int64(6), next)
}

func TestSynchronizeClocksSetsAverageOffset(t *testing.T) {
	s := NewService("node-1", nil)
	s.SetPeerTimeFunc(func(peer string) (int64, error) {
		switch peer {
		case "p1":
			return 1000000, nil
		case "p2":
			return 1000000, nil
		}
		return 0, errors.New("unknown peer")
	})

	before := s.CurrentTimestamp()
	s.SynchronizeClocks([]string{"p1", "p2"})
	after := s.CurrentTimestamp()

	assert.NotEqual(t, before, after)
	// Both peers report 1000000, so the averaged offset puts the adjusted
	// clock at that value (plus the few milliseconds the test takes).
	assert.InDelta(t, float64(1000000), float64(after), 1000)
}

func TestSynchronizeClocksSkipsErroringPeers(t *testing.T) {
	s := NewService("node-1", nil)
	called := 0
	s.SetPeerTimeFunc(func(peer string) (int64, error) {
		called++
		return 0, errors.New("unreachable")
	})
	s.SynchronizeClocks([]string{"p1"})
	assert.Equal(t, 1, called)
}

func TestSynchronizeClocksNoPeersIsNoop(t *testing.T) {
	s := NewService("node-1", nil)
	s.SynchronizeClocks(nil)
	s.SynchronizeClocks([]string{})
}

func TestDetectSkewFlagsLargeDivergence(t *testing.T) {
	s := NewService("node-1", nil)
	now := s.CurrentTimestamp()
	assert.True(t, s.DetectSkew(now-5000, "peer-a"))
	assert.False(t, s.DetectSkew(now, "peer-a"))
}

func TestCorrectTimestampStampsMessage(t *testing.T) {
	s := NewService("node-1", nil)
	m, err := message.New("alice", "bob", "hi")
	require.NoError(t, err)

	s.CorrectTimestamp(m)
	assert.Greater(t, m.PhysicalTS(), int64(0))
	assert.Equal(t, int64(1), m.LogicalTS())
}

func TestStampAdvancesLogicalTime(t *testing.T) {
	s := NewService("node-1", nil)
	m1, _ := message.New("alice", "bob", "hi")
	m2, _ := message.New("alice", "bob", "again")

	s.Stamp(m1)
	s.Stamp(m2)

	assert.Less(t, m1.LogicalTS(), m2.LogicalTS())
}
