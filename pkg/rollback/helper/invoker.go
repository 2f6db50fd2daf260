package helper

import (
	"errors"
	"sync"
)

// ErrInvokerStopped is returned when spawning after Stop.
var ErrInvokerStopped = errors.New("invoker already stopped")

// Invoker is responsible for handling goroutines.
// Every goroutine of a session or relay is spawned through its own
// invoker, so when the owner shuts down it can wait for all of them
// and none is leaked.
type Invoker interface {
	// Spawn a new goroutine tracked by the invoker.
	Spawn(func()) error

	// Stop the invoker and block until every spawned goroutine
	// returns. After this any Spawn fails.
	Stop()
}

// GroupInvoker implements Invoker over a wait group.
// Different from a process wide singleton, each owner creates its
// own instance so sessions do not share lifecycle.
type GroupInvoker struct {
	// Use to synchronize if the invoker if open or not.
	mutex sync.Mutex

	// Flag that tells if the invoker still available or not.
	working bool

	// Wait group to keep track of go routines.
	group sync.WaitGroup
}

// NewInvoker creates a ready to use invoker.
func NewInvoker() *GroupInvoker {
	return &GroupInvoker{working: true}
}

// Spawn increases the group count and runs the function on a new
// goroutine. After the routine is done the group is decreased.
func (i *GroupInvoker) Spawn(f func()) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	if !i.working {
		return ErrInvokerStopped
	}

	i.group.Add(1)
	go func() {
		defer i.group.Done()
		f()
	}()
	return nil
}

// Stop blocks while waiting for the goroutines to finish.
func (i *GroupInvoker) Stop() {
	i.mutex.Lock()
	i.working = false
	i.mutex.Unlock()
	i.group.Wait()
}
