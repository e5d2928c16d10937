package mailbox

import (
	"errors"
	"fmt"
)

// ConnectionError indicates a network or authentication failure on an
// account's mailbox session. It is fatal to the owning sync loop; other
// accounts are unaffected.
type ConnectionError struct {
	Account string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox %s (%s): %v", e.Op, e.Account, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
