//go:build e2e

package e2e

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"testing"
)

func TestMain(m *testing.M) {
	// An interrupt mid-run must still terminate the shared containers,
	// otherwise they outlive the test binary.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupts
		cleanupSharedContainers()
		os.Exit(1)
	}()

	code := m.Run()

	cleanupSharedContainers()
	os.Exit(code)
}

// cleanupSharedContainers terminates the shared test containers.
func cleanupSharedContainers() {
	ctx := context.Background()

	if sharedPostgresHelper != nil && sharedPostgresHelper.Container != nil {
		_ = sharedPostgresHelper.Container.Terminate(ctx)
		sharedPostgresHelper = nil
	}
}
