package auth

import "errors"

// Domain error taxonomy shared by the auth flows. The HTTP layer owns the
// mapping to status codes; nothing here leaks store-level errors upward
// without wrapping.
var (
	// ErrValidation indicates missing or malformed caller input.
	ErrValidation = errors.New("auth: validation failed")
	// ErrConflict indicates a registration collided with an existing
	// email or username.
	ErrConflict = errors.New("auth: account already exists")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrIdentityConflict indicates an email-linking attempt against a
	// record already bound to a different external identity.
	ErrIdentityConflict = errors.New("auth: conflicting external identity")
)
