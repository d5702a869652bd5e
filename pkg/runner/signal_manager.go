package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// SignalManager ties OS signals to a context and mitigates the race between a
// read error and the signal that caused it (e.g. Windows Stdin EOF vs Interrupt).
type SignalManager struct {
	parent context.Context
	ctx    context.Context
	stop   context.CancelFunc
	cancel context.CancelFunc
}

// NewSignalManager creates a new manager derived from parent and immediately
// starts listening for SIGINT and SIGTERM.
func NewSignalManager(parent context.Context) *SignalManager {
	if parent == nil {
		parent = context.Background()
	}
	sm := &SignalManager{parent: parent}
	sm.Reset()
	return sm
}

// Context returns the current signal context.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Reset re-arms the signal listener with a fresh context.
func (sm *SignalManager) Reset() {
	sm.Stop()
	notify, stop := signal.NotifyContext(sm.parent, os.Interrupt, syscall.SIGTERM)
	sm.ctx, sm.cancel = context.WithCancel(notify)
	sm.stop = stop
}

// Interrupt cancels the current context as if a signal had arrived.
func (sm *SignalManager) Interrupt() {
	if sm.cancel != nil {
		sm.cancel()
	}
}

// Stop permanently stops the signal listener.
func (sm *SignalManager) Stop() {
	if sm.cancel != nil {
		sm.cancel()
	}
	if sm.stop != nil {
		sm.stop()
	}
}

// CheckRace waits briefly to see if a context cancellation follows an error.
// On Windows/PowerShell Ctrl+C causes an EOF or input error slightly before
// the signal context is cancelled.
func (sm *SignalManager) CheckRace() {
	if sm.ctx.Err() == nil {
		select {
		case <-sm.ctx.Done():
		case <-time.After(100 * time.Millisecond):
		}
	}
}
