package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteMessageRejectsBlankFields(t *testing.T) {
	e := New(3, nil)
	assert.False(t, e.WriteMessage("", "content"))
	assert.False(t, e.WriteMessage("id", ""))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	e := New(5, nil)
	e.SetFaultRates(0, 0)

	ok := e.WriteMessage("msg-1", "hello")
	assert.True(t, ok)
	assert.Equal(t, 1, e.StabilizedCount())

	v, found := e.ReadMessage("msg-1")
	assert.True(t, found)
	assert.Equal(t, "hello", v)
}

func TestWriteMessageIsIdempotentForSameID(t *testing.T) {
	e := New(3, nil)
	e.SetFaultRates(0, 0)
	assert.True(t, e.WriteMessage("dup-id", "first"))
	assert.True(t, e.WriteMessage("dup-id", "ignored-second-write"))
	assert.Equal(t, 1, e.StabilizedCount())

	v, found := e.ReadMessage("dup-id")
	assert.True(t, found)
	assert.Equal(t, "first", v)
}

func TestDuplicateWriteSkipsReplicaDispatch(t *testing.T) {
	e := New(3, nil)
	e.SetFaultRates(0, 0)

	assert.True(t, e.WriteMessage("dup-id", "first"))
	dispatched := e.ReplicaDispatches()

	assert.True(t, e.WriteMessage("dup-id", "first"))
	assert.Equal(t, dispatched, e.ReplicaDispatches(),
		"an already-deduped id must not dispatch to replicas again")
}

func TestWriteFailsWithoutQuorum(t *testing.T) {
	e := New(3, nil)
	e.SetFaultRates(1.0, 0)

	assert.False(t, e.WriteMessage("doomed", "never lands"))
	assert.Equal(t, 0, e.StabilizedCount())
}

func TestReadMessageMissingIDReturnsNotFound(t *testing.T) {
	e := New(3, nil)
	_, found := e.ReadMessage("never-written")
	assert.False(t, found)
}

func TestQuorumSizesForOddAndEvenN(t *testing.T) {
	assert.Equal(t, 2, New(3, nil).writeQuorum)
	assert.Equal(t, 3, New(5, nil).writeQuorum)
	assert.Equal(t, 3, New(4, nil).writeQuorum) // floor(4/2)+1 = 3
	assert.Equal(t, 1, New(1, nil).writeQuorum)
}

func TestResolvePluralityBreaksTiesByFirstSeen(t *testing.T) {
	results := []readResult{
		{value: "a", ok: true, order: 0},
		{value: "b", ok: true, order: 1},
	}
	assert.Equal(t, "a", resolvePlurality(results))
}

func TestResolvePluralityPicksMajority(t *testing.T) {
	results := []readResult{
		{value: "a", ok: true, order: 0},
		{value: "b", ok: true, order: 1},
		{value: "b", ok: true, order: 2},
	}
	assert.Equal(t, "b", resolvePlurality(results))
}

func TestShutdownCancelsInFlightDispatches(t *testing.T) {
	e := New(3, nil)
	e.Shutdown()
	assert.False(t, e.WriteMessage("after-shutdown", "x"))
}
