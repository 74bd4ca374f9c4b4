// Package transport implements the cluster's line-oriented duplex
// protocol: on accept, the server writes "READY\n" and reads one line. A
// "PING" line gets "PONG\n" and the connection continues or closes; any
// other line is an application message, handed to a callback and
// acknowledged with "ACK\n", with reading continuing until EOF or an
// "EXIT" line. The client side both drives the health-check path (consume
// and discard READY, send PING, expect PONG) and the full message
// exchange (consume READY, send message, expect ACK).
package transport
