package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/acmecorp/supportbot/internal/log"
)

// A compaction goroutine stuck on a hung upstream call exits only once the
// background context is canceled, so Close has to cancel before it waits.
func TestCloseUnblocksBackgroundWork(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Logger: log.NewNop(), bgCancel: cancel}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
	}()

	done := make(chan error, 1)
	go func() { done <- a.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return; background work was never canceled")
	}
}
