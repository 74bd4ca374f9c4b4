package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorClockIncrementAndSnapshot(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("node-1")
	vc.Increment("node-1")
	vc.Increment("node-2")

	snap := vc.Snapshot()
	assert.Equal(t, 2, snap["node-1"])
	assert.Equal(t, 1, snap["node-2"])
}

func TestVectorClockMergeFromTakesElementwiseMax(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("node-1")

	vc.MergeFrom(map[string]int{"node-1": 5, "node-2": 3})

	snap := vc.Snapshot()
	assert.Equal(t, 5, snap["node-1"])
	assert.Equal(t, 3, snap["node-2"])
}

func TestVectorClockMergeFromNilIsNoop(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("node-1")
	vc.MergeFrom(nil)
	assert.Equal(t, 1, vc.Snapshot()["node-1"])
}

func TestVectorClockSerializeIsSortedAndDeterministic(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("node-b")
	vc.Increment("node-a")
	vc.Increment("node-a")

	assert.Equal(t, "node-a:2;node-b:1", vc.Serialize())
}

func TestVectorClockSerializeEmpty(t *testing.T) {
	vc := NewVectorClock()
	assert.Equal(t, "", vc.Serialize())
}

func TestDeserializeVectorClockRoundTrip(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("node-a")
	vc.Increment("node-b")
	vc.Increment("node-b")

	parsed := DeserializeVectorClock(vc.Serialize())
	assert.Equal(t, map[string]int{"node-a": 1, "node-b": 2}, parsed)
}

func TestDeserializeVectorClockDropsMalformedEntries(t *testing.T) {
	parsed := DeserializeVectorClock("node-a:1;garbage;node-b:notanumber;node-c:3")
	assert.Equal(t, map[string]int{"node-a": 1, "node-c": 3}, parsed)
}

func TestDeserializeVectorClockEmptyString(t *testing.T) {
	parsed := DeserializeVectorClock("")
	assert.Empty(t, parsed)
}

func TestVectorClockCompareDominance(t *testing.T) {
	a := NewVectorClock()
	a.MergeFrom(map[string]int{"n1": 2, "n2": 1})

	b := NewVectorClock()
	b.MergeFrom(map[string]int{"n1": 1, "n2": 1})

	assert.Equal(t, 1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(a))
}

func TestVectorClockCompareEqualIsZero(t *testing.T) {
	a := NewVectorClock()
	a.MergeFrom(map[string]int{"n1": 1})

	b := NewVectorClock()
	b.MergeFrom(map[string]int{"n1": 1})

	assert.Equal(t, 0, a.Compare(b))
}

func TestVectorClockCompareConcurrentIsZero(t *testing.T) {
	a := NewVectorClock()
	a.MergeFrom(map[string]int{"n1": 2, "n2": 1})

	b := NewVectorClock()
	b.MergeFrom(map[string]int{"n1": 1, "n2": 2})

	assert.Equal(t, 0, a.Compare(b))
	assert.Equal(t, 0, b.Compare(a))
}

func TestVectorClockCompareIgnoresKeysOnlyOtherTracks(t *testing.T) {
	empty := NewVectorClock()

	populated := NewVectorClock()
	populated.MergeFrom(map[string]int{"n1": 5})

	// Dominance is judged over the receiver's own entries only, so an
	// empty clock is never dominated, while the populated side sees its
	// n1 entry beating an implicit 0.
	assert.Equal(t, 0, empty.Compare(populated))
	assert.Equal(t, 1, populated.Compare(empty))
}
