package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jpillora/overseer"
)

const RestartSignal = syscall.SIGUSR2

// SetupGracefulShutdown calls cancel on the first shutdown or restart signal.
func SetupGracefulShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		RestartSignal,
		syscall.SIGHUP,
		os.Interrupt,
		overseer.SIGTERM,
		overseer.SIGUSR1,
		syscall.SIGINT,
	)

	go func() {
		sig := <-sigCh
		Infof("🔴 Received signal %v. Initiating shutdown...", sig)
		signal.Stop(sigCh)
		cancel()
	}()
}
