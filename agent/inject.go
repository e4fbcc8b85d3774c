// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/gridbus/lib/reactor"
)

// wakePipe is a self-pipe registered with the reactor. Writing a byte
// makes the loop goroutine's poll return.
type wakePipe struct {
	read, write int
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("creating wake pipe: %w", err)
	}
	return &wakePipe{read: fds[0], write: fds[1]}, nil
}

func (w *wakePipe) Fd() int { return w.read }

// signal wakes the reader. A full pipe already guarantees a wakeup.
func (w *wakePipe) signal() {
	for {
		_, err := unix.Write(w.write, []byte{1})
		if !errors.Is(err, unix.EINTR) {
			return
		}
	}
}

func (w *wakePipe) drain() {
	var buffer [64]byte
	for {
		n, err := unix.Read(w.read, buffer[:])
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || n < len(buffer) {
			return
		}
	}
}

func (w *wakePipe) close() error {
	if w.read < 0 {
		return nil
	}
	readErr := unix.Close(w.read)
	writeErr := unix.Close(w.write)
	w.read, w.write = -1, -1
	return errors.Join(readErr, writeErr)
}

// Submit queues fn to run on the loop goroutine and wakes the loop.
// Safe from any goroutine. Functions run in submission order.
func (a *Agent) Submit(fn func()) error {
	a.injectMu.Lock()
	if a.injectEnd {
		a.injectMu.Unlock()
		return ErrStopped
	}
	a.injected = append(a.injected, fn)
	// Signal under the lock so Finish cannot close the pipe between
	// the queue append and the write.
	a.wake.signal()
	a.injectMu.Unlock()
	return nil
}

// runInjected is the reactor callback for the wake pipe.
func (a *Agent) runInjected(reactor.Source, reactor.Kind) error {
	a.wake.drain()

	a.injectMu.Lock()
	queued := a.injected
	a.injected = nil
	a.injectMu.Unlock()

	// Under Propagate a panic unwinds the loop; under Continue guard
	// turns it into an error.
	for _, fn := range queued {
		if err := a.guard(func() error { fn(); return nil })(); err != nil {
			a.logger.Error("submitted function failed", "error", err)
		}
	}
	return nil
}
