// Package node wires one cluster node's five co-operating components
// together: the coordination client, the failure detector, the
// replication engine, the time service and the sequencer, plus the line
// transport that carries messages between nodes. A leader stamps,
// replicates, records metadata and sequences locally; a follower forwards
// raw content to the leader.
package node
