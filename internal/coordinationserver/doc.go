// Package coordinationserver is the reference implementation of the
// hierarchical coordination service internal/coordination talks to: an
// in-memory znode tree supporting persistent, ephemeral and
// ephemeral-sequential nodes, session-scoped ephemeral ownership, and
// long-poll watches on individual paths. Sessions that stop heartbeating
// expire, and their ephemeral znodes are reaped.
package coordinationserver
