package util

import (
	"context"
	"testing"
	"time"
)

func TestWaitForInterruptContextReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	shutdownRan := false
	returned := make(chan struct{})
	go func() {
		waitForInterruptContext(ctx, func() { shutdownRan = true })
		close(returned)
	}()

	cancel()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return after cancellation")
	}
	if !shutdownRan {
		t.Fatal("shutdown callback did not run")
	}
}

func TestWaitForInterruptContextNilCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must return promptly and not panic without a callback.
	returned := make(chan struct{})
	go func() {
		waitForInterruptContext(ctx, nil)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("wait did not return on a cancelled context")
	}
}
