// Command node boots a single cluster member: it connects to the
// coordination service, waits for the initial leader election, starts its
// transport and metrics servers, and then runs an operator command loop
// on stdin until interrupted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/quorumcast/cluster/internal/config"
	"github.com/quorumcast/cluster/internal/logging"
	"github.com/quorumcast/cluster/internal/node"
)

func main() {
	configPath := flag.String("config", "", "path to a node config YAML file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.NodeID, cfg.LogLevel)
	n := node.New(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := n.Start(ctx); err != nil {
		log.WithError(err).Fatal("node failed to start")
	}
	cancel()

	log.WithField("listen_addr", cfg.ListenAddr).Info("node is up")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	inputDone := make(chan struct{})
	go runCommandLoop(n, cfg.PeerAddrs, inputDone)

	select {
	case <-stop:
	case <-inputDone:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	n.Stop(shutdownCtx)
	log.Info("node stopped")
}

// runCommandLoop implements the operator-facing REPL: "send <to> <text>"
// originates a message from this node, "read <id>" quorum-reads a
// previously accepted message, "status" prints leadership state, "peers"
// prints the current leader and lists configured peers, and "quit" ends
// the loop.
func runCommandLoop(n *node.Node, peers map[string]string, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: send <to> <text> | read <id> | status | peers | quit")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		switch fields[0] {
		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <to> <text>")
				continue
			}
			m, err := n.SendMessage(n.ID(), fields[1], fields[2])
			if err != nil {
				fmt.Printf("send failed: %v\n", err)
			} else if m != nil {
				fmt.Printf("accepted %s\n", m.ShortID())
			} else {
				fmt.Println("forwarded to leader")
			}
		case "read":
			if len(fields) < 2 {
				fmt.Println("usage: read <id>")
				continue
			}
			if v, found := n.ReadMessage(fields[1]); found {
				fmt.Printf("%s\n", v)
			} else {
				fmt.Println("not found (quorum unavailable)")
			}
		case "status":
			fmt.Printf("leader=%v\n", n.Coordinator.IsLeader())
		case "peers":
			leader, _ := n.Coordinator.CurrentLeader()
			fmt.Printf("current leader: %s\n", leader)
			ids := make([]string, 0, len(peers))
			for id := range peers {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Printf("%s %s\n", id, peers[id])
			}
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command")
		}
	}
}
