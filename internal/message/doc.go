// Package message defines the envelope type that flows through every other
// package in this cluster: coordination (metadata storage), replication
// (write/read payloads), clock (timestamp stamping), and sequencer
// (per-conversation ordering).
//
// A Message is mutable only in its timestamp fields; sender, receiver,
// content and id are fixed at construction and never change afterwards.
// Equality is always by id, never by field comparison.
package message
