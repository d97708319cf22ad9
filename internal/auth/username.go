package auth

import (
	"fmt"
	"regexp"
)

// MaxUsernameLen bounds usernames so they stay usable as file names.
const MaxUsernameLen = 64

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)

// CheckUsername reports whether name may be enrolled. Usernames travel inside
// tokens (space separated) and name per-user store files, so spaces, path
// separators and the dot entries are refused. Upper case is refused too:
// "Bob" and "bob" would share one store file on case-insensitive filesystems.
func CheckUsername(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidUsername)
	case len(name) > MaxUsernameLen:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidUsername, MaxUsernameLen)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidUsername, name)
	case !usernamePattern.MatchString(name):
		return fmt.Errorf("%w: %q has characters outside [a-z0-9_.-]", ErrInvalidUsername, name)
	}
	return nil
}
