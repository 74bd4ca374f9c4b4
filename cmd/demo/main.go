// Command demo launches three in-process nodes against an in-process
// coordination service, for local smoke-testing without spawning
// separate processes.
package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	"github.com/quorumcast/cluster/internal/config"
	"github.com/quorumcast/cluster/internal/coordinationserver"
	"github.com/quorumcast/cluster/internal/logging"
	"github.com/quorumcast/cluster/internal/node"
)

const nodeCount = 3

func main() {
	coordSrv := httptest.NewServer(coordinationserver.NewServer(nil))
	defer coordSrv.Close()

	fmt.Printf("coordination service at %s\n", coordSrv.URL)

	peerAddrs := make(map[string]string, nodeCount)
	for i := 1; i <= nodeCount; i++ {
		peerAddrs[fmt.Sprintf("node-%d", i)] = fmt.Sprintf("127.0.0.1:%d", 7200+i)
	}

	nodes := make([]*node.Node, 0, nodeCount)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 1; i <= nodeCount; i++ {
		id := fmt.Sprintf("node-%d", i)
		others := make(map[string]string, nodeCount-1)
		for peerID, addr := range peerAddrs {
			if peerID != id {
				others[peerID] = addr
			}
		}

		cfg := &config.NodeConfig{
			NodeID:          id,
			ListenAddr:      peerAddrs[id],
			CoordinatorAddr: coordSrv.URL,
			PeerAddrs:       others,
			TotalNodes:      nodeCount,
			MetricsAddr:     fmt.Sprintf("127.0.0.1:%d", 9100+i),
			LogLevel:        "info",
		}

		log := logging.New(id, "info")
		n := node.New(cfg, log)
		if err := n.Start(ctx); err != nil {
			fmt.Printf("node %s failed to start: %v\n", id, err)
			return
		}
		nodes = append(nodes, n)
		fmt.Printf("%s up, leader=%v\n", id, n.Coordinator.IsLeader())
	}

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		for _, n := range nodes {
			n.Stop(stopCtx)
		}
	}()

	sender, receiver := nodes[0], nodes[1]
	m, err := sender.SendMessage(sender.ID(), receiver.ID(), "hello from the demo harness")
	if err != nil {
		fmt.Printf("send failed: %v\n", err)
		return
	}
	if m != nil {
		fmt.Printf("accepted message %s: %q\n", m.ShortID(), m.Content())
	} else {
		fmt.Println("message forwarded to leader")
	}
}
