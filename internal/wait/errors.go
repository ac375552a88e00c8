package wait

import "errors"

// ErrCancelled is the error a Future resolves to when its waiter
// calls Cancel before the slot it is waiting on fires. A Future whose
// Await context is done first resolves with that context's error
// instead.
var ErrCancelled = errors.New("wait: future was cancelled")
