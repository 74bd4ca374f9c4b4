// Package sequencer buffers messages per conversation and releases them to
// a delivery callback in strictly increasing logical-timestamp order, with
// no gaps. Ordering is per-conversation FIFO only; there is no cluster-wide
// total order across conversations.
package sequencer
