package subsystem

import (
	"errors"
	"fmt"

	"github.com/energizer-project/realmlink/internal/protocol"
	"github.com/energizer-project/realmlink/internal/router"
)

var (
	// ErrNotConnected is returned by operations issued while the realm
	// connection is down.
	ErrNotConnected = router.ErrNotConnected

	// ErrPrecondition matches every *PreconditionError via errors.Is.
	ErrPrecondition = errors.New("precondition failed")

	// ErrDisposed is returned by operations on a disposed facade.
	ErrDisposed = errors.New("subsystem disposed")
)

// TransportError is a send failure other than a missing connection.
type TransportError struct {
	Subsystem string
	Opcode    protocol.Opcode
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: failed to send %s: %v", e.Subsystem, e.Opcode, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PreconditionError rejects an operation whose required state has not
// been confirmed by the server yet.
type PreconditionError struct {
	Subsystem string
	Operation string
	Reason    string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: cannot %s: %s", e.Subsystem, e.Operation, e.Reason)
}

// Is lets errors.Is(err, ErrPrecondition) match.
func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}
