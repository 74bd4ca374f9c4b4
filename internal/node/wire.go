package node

import (
	"fmt"
	"strings"
)

// encodeWireMessage serializes sender, receiver and content into the
// single line the transport carries between nodes: fields are joined
// with "|", with content last so it may itself contain "|" without
// ambiguity.
func encodeWireMessage(sender, receiver, content string) string {
	return sender + "|" + receiver + "|" + content
}

// decodeWireMessage reverses encodeWireMessage.
func decodeWireMessage(line string) (sender, receiver, content string, err error) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("node: malformed wire message %q", line)
	}
	return parts[0], parts[1], parts[2], nil
}
