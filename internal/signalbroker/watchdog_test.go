// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watchForTest(t *testing.T) (context.Context, chan os.Signal, *sync.WaitGroup) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)

	sigCh := make(chan os.Signal, 2)

	wg := &sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()
		Watch(ctx, sigCh, cancel)
	}()

	t.Cleanup(cancel)

	return ctx, sigCh, wg
}

func TestWatchFirstSignalDoesNotCancel(t *testing.T) {
	ctx, sigCh, wg := watchForTest(t)

	sigCh <- os.Interrupt

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, ctx.Err(), "first signal must leave the context alive")

	close(sigCh)
	wg.Wait()
}

func TestWatchSecondSignalCancels(t *testing.T) {
	ctx, sigCh, wg := watchForTest(t)

	sigCh <- os.Interrupt
	sigCh <- os.Interrupt

	wg.Wait()

	require.Error(t, ctx.Err(), "second signal of a type forces cancellation")

	// Watch closes the channel itself on the forced path.
	_, open := <-sigCh
	assert.False(t, open)
}

func TestWatchDistinctSignalsDoNotCancel(t *testing.T) {
	ctx, sigCh, wg := watchForTest(t)

	sigCh <- os.Interrupt
	sigCh <- os.Kill

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, ctx.Err(), "distinct signal types each get a graceful first chance")

	close(sigCh)
	wg.Wait()
}
