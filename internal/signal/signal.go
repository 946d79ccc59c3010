package signal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// WatchInterrupt returns a context cancelled on SIGINT or SIGTERM. The process exits if it is
// still running forceShutdownDelay after the signal.
func WatchInterrupt(ctx context.Context, forceShutdownDelay time.Duration) context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		select {
		case <-sigs:
		case <-ctx.Done():
			signal.Stop(sigs)
			return
		}

		log.Warnf("interrupt signal received, shutting down gracefully or exiting in %s", forceShutdownDelay)
		cancel()

		timer := time.NewTimer(forceShutdownDelay)
		<-timer.C

		log.Warnf("still running %s after interrupt, exiting now", forceShutdownDelay)
		os.Exit(1)
	}()

	return ctx
}
