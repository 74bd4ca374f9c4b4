// Package failuredetector probes a configured peer set over the line
// transport with a PING/PONG handshake and emits debounced up/down events.
// A single scheduled worker probes every peer sequentially each interval;
// listener callbacks run on that same goroutine and are recovered so a
// panicking listener cannot abort the scheduler.
package failuredetector
