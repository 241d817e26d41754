package engine

import "errors"

// ErrStopped is returned by Submit once Close has been called.
var ErrStopped = errors.New("task engine stopped")
