package coordinationserver

import (
	"context"
	"testing"
	"time"

	"github.com/quorumcast/cluster/internal/coordination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePersistentThenDuplicateFails(t *testing.T) {
	tr := NewTree()
	_, err := tr.Create("/messaging-system", "", coordination.Persistent, "")
	require.NoError(t, err)

	_, err = tr.Create("/messaging-system", "", coordination.Persistent, "")
	assert.ErrorIs(t, err, ErrExists)
}

func TestCreateEphemeralSequentialAssignsIncreasingSuffixes(t *testing.T) {
	tr := NewTree()
	p1, err := tr.Create("/messaging-system/leader/candidate-", "node-1", coordination.EphemeralSequential, "sess-1")
	require.NoError(t, err)
	p2, err := tr.Create("/messaging-system/leader/candidate-", "node-2", coordination.EphemeralSequential, "sess-2")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.Less(t, p1, p2, "sequence suffixes should sort lexicographically in creation order")
}

func TestChildrenListsDirectChildrenOnly(t *testing.T) {
	tr := NewTree()
	_, err := tr.Create("/messaging-system/nodes/node-1", "node-1", coordination.Ephemeral, "sess-1")
	require.NoError(t, err)
	_, err = tr.Create("/messaging-system/nodes/node-2", "node-2", coordination.Ephemeral, "sess-2")
	require.NoError(t, err)

	children := tr.Children("/messaging-system/nodes")
	assert.Equal(t, []string{"node-1", "node-2"}, children)
}

func TestDeleteRemovesNodeAndNotifiesWatchers(t *testing.T) {
	tr := NewTree()
	p, err := tr.Create("/messaging-system/leader/candidate-", "node-1", coordination.EphemeralSequential, "sess-1")
	require.NoError(t, err)

	done := make(chan bool, 1)
	go func() {
		deleted, timedOut := tr.Watch(context.Background(), p)
		done <- deleted && !timedOut
	}()

	time.Sleep(10 * time.Millisecond)
	tr.Delete(p)

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch did not observe deletion")
	}

	_, exists := tr.Get(p)
	assert.False(t, exists)
}

func TestWatchOnAlreadyMissingPathReturnsDeletedImmediately(t *testing.T) {
	tr := NewTree()
	deleted, timedOut := tr.Watch(context.Background(), "/never/created")
	assert.True(t, deleted)
	assert.False(t, timedOut)
}

func TestCloseSessionRemovesOwnedEphemerals(t *testing.T) {
	tr := NewTree()
	_, err := tr.Create("/messaging-system/nodes/node-1", "node-1", coordination.Ephemeral, "sess-1")
	require.NoError(t, err)
	_, err = tr.Create("/messaging-system", "", coordination.Persistent, "")
	require.NoError(t, err)

	tr.CloseSession("sess-1")

	_, exists := tr.Get("/messaging-system/nodes/node-1")
	assert.False(t, exists)

	_, exists = tr.Get("/messaging-system")
	assert.True(t, exists, "persistent nodes must survive session closure")
}
