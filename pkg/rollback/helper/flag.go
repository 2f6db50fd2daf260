package helper

import "sync/atomic"

// Flag is a one way switch guarding a teardown. It starts active and
// only the first Inactivate call succeeds, so the caller that wins
// owns the cleanup, such as leaving the relay or closing the channel
// handed to the tick loop. There is no way back to active.
type Flag struct {
	off atomic.Bool
}

// IsActive returns `true` until the flag is inactivated.
func (f *Flag) IsActive() bool {
	return !f.off.Load()
}

// IsInactive returns `true` once the flag was inactivated.
func (f *Flag) IsInactive() bool {
	return f.off.Load()
}

// Inactivate turns the flag off, returning `true` only for the call
// that did it.
func (f *Flag) Inactivate() bool {
	return f.off.CompareAndSwap(false, true)
}
