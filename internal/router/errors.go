package router

import "errors"

// ErrNotConnected is wrapped by Connection.Send when there is no live
// session to write to.
var ErrNotConnected = errors.New("not connected")
