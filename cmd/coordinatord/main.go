// Command coordinatord runs the reference coordination service that
// cluster nodes use for leader election and live-membership tracking.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quorumcast/cluster/internal/coordinationserver"
	"github.com/sirupsen/logrus"
)

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := log.WithField("component", "coordinatord")

	srv := coordinationserver.NewServer(entry)
	httpServer := &http.Server{Addr: *addr, Handler: srv}

	go func() {
		entry.WithField("addr", *addr).Info("coordination service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			entry.WithError(err).Fatal("coordination service failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	entry.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		entry.WithError(err).Warn("graceful shutdown failed")
	}
}
