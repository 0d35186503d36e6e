// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. AfterFunc callbacks
// run synchronously inside Advance, in deadline order. Do not call
// Advance from within a callback; re-registering a timer from within a
// callback (the watchdog's repeat path) is supported.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

// fakeWaiter is one pending AfterFunc or Sleep.
type fakeWaiter struct {
	deadline time.Time

	// callback is set for AfterFunc waiters, channel for Sleep.
	callback func()
	channel  chan time.Time

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run when the clock advances past d from
// now. If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()
	c.mu.Unlock()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past d
// from now. If d <= 0, returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()
	c.mu.Unlock()
	<-waiter.channel
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. The clock
// steps to each waiter's deadline before firing it, so a callback that
// registers a new waiter (a repeating timer) sees its own fire time as
// Now and the new waiter fires in the same Advance call when its
// deadline still falls within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		waiter := c.takeNextExpired(target)
		if waiter == nil {
			break
		}
		if waiter.callback != nil {
			waiter.callback()
		} else {
			waiter.channel <- waiter.deadline
		}
	}

	c.mu.Lock()
	c.current = target
	c.mu.Unlock()
}

// takeNextExpired removes and returns the expired waiter with the
// earliest deadline, stepping the clock to that deadline, or returns
// nil when none remain at or before target.
func (c *FakeClock) takeNextExpired(target time.Time) *fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	for len(c.waiters) > 0 {
		waiter := c.waiters[0]
		if waiter.deadline.After(target) {
			break
		}
		c.waiters = c.waiters[1:]
		if waiter.stopped {
			continue
		}
		waiter.fired = true
		if waiter.deadline.After(c.current) {
			c.current = waiter.deadline
		}
		return waiter
	}
	return nil
}

// WaitForTimers blocks until at least n waiters are pending. This
// removes the race between a goroutine registering a timer and the
// test advancing the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.waitersChanged.Wait()
	}
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			count++
		}
	}
	return count
}
