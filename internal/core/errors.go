package core

import "errors"

// Error taxonomy shared by every component. Operations wrap these with
// context; callers test with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrOutOfRange        = errors.New("index out of range")
	ErrDuplicate         = errors.New("already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownCategory   = errors.New("unknown category")
)

// Outcome reduces an operation result to the success flag and message shown
// to users.
func Outcome(err error, okMsg string) (bool, string) {
	if err != nil {
		return false, err.Error()
	}
	return true, okMsg
}

// IsUserError returns true for failures caused by caller input rather than
// by storage.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrOutOfRange, ErrDuplicate, ErrInvalidCredential,
		ErrInvalidInput, ErrUnknownCategory, ErrInvalidAmount, ErrInvalidKind,
		ErrEmptyCategory, ErrEmptyCredentials,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
