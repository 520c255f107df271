// Package kerr defines the error taxonomy returned by kernel object calls.
//
// Every guest-visible failure is one of the sentinel errors below. Callers
// test for them with errors.Is; operations that know which object failed
// wrap the sentinel in an *Error carrying the operation name and UID.
//
// Example output:
//
//	sema_signal 0x1f: value would exceed maximum
package kerr

import (
	"errors"
	"fmt"

	"github.com/kolkov/kernelsync/internal/kernel/uid"
)

var (
	// ErrInvalidHandle reports a UID absent from its map, or a handle whose
	// object has already been deleted.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrNotOwner reports an unlock-class call by a thread that does not
	// own the mutex.
	ErrNotOwner = errors.New("thread is not the owner")

	// ErrTimeout reports that the deadline elapsed while blocked.
	ErrTimeout = errors.New("wait timed out")

	// ErrWouldBlock reports a non-blocking call whose condition is unmet.
	ErrWouldBlock = errors.New("operation would block")

	// ErrOverflow reports a signal exceeding a bounded maximum.
	ErrOverflow = errors.New("value would exceed maximum")

	// ErrAlreadyExists reports a name-based creation conflict with an
	// object of identical attributes.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrAttrMismatch reports a name-based creation conflict with an object
	// whose attributes differ.
	ErrAttrMismatch = errors.New("object attributes mismatch")

	// ErrWaitDeleted is returned to every waiter force-woken because its
	// primitive was deleted.
	ErrWaitDeleted = errors.New("wait object deleted")

	// ErrWaitCanceled is returned to waiters released by an explicit cancel
	// call or whose context was canceled.
	ErrWaitCanceled = errors.New("wait canceled")

	// ErrThreadExited is returned to a wait whose thread was torn down.
	ErrThreadExited = errors.New("waiting thread exited")

	// ErrInvalidArgument reports malformed counts, masks or initial values.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error attaches the failing operation and object to a sentinel error.
//
// Fields:
//   - Op: Kernel call name (e.g. "sema_signal")
//   - UID: Object the call targeted (uid.Invalid if unknown)
//   - Err: One of the sentinel errors above
type Error struct {
	Op  string
	UID uid.UID
	Err error
}

// Error implements the error interface.
//
// Format: op uid: message, or op: message when the UID is unknown.
func (e *Error) Error() string {
	if e.UID == uid.Invalid {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.UID, e.Err)
}

// Unwrap exposes the sentinel for errors.Is.
func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err annotated with op and id. A nil err stays nil.
func Wrap(op string, id uid.UID, err error) error {
	if err == nil {
		return nil
	}
	var ke *Error
	if errors.As(err, &ke) {
		return err
	}
	return &Error{Op: op, UID: id, Err: err}
}
