// Package coordination is the client for the cluster's hierarchical
// coordination service: session registration, live-membership tracking,
// the watch-predecessor leader election algorithm, and leader-only
// metadata writes. The wire types of the HTTP contract are defined here
// (types.go) and shared with the reference server in
// internal/coordinationserver.
package coordination
