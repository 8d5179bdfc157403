package chat

import "errors"

// Application errors. Unlike framing and transport errors these are
// recoverable: the dispatcher reports them to the caller as an error response
// frame and the connection stays open. Handlers validate preconditions before
// mutating, so none of these ever leaves shared state half-updated.
var (
	// ErrUsernameTaken is returned by the commit phase of account creation
	// when the username already exists.
	ErrUsernameTaken = errors.New("account creation failed: username already in use")

	// ErrUserNotFound is returned when an operation names an account that
	// does not exist.
	ErrUserNotFound = errors.New("user account not found")

	// ErrWrongCredentials is returned on login when the username is unknown
	// or the password hash does not match. The two cases are
	// indistinguishable so that login cannot be used to enumerate accounts.
	ErrWrongCredentials = errors.New("invalid username or password")

	// ErrNotOnline is returned when an operation requires an online session
	// the caller does not have.
	ErrNotOnline = errors.New("user not online or does not exist")

	// ErrRecipientNotFound is returned by send when the recipient account
	// does not exist.
	ErrRecipientNotFound = errors.New("recipient does not exist")

	// ErrMessageNotFound is returned when a message id is absent from the
	// caller's mailbox.
	ErrMessageNotFound = errors.New("message not found")
)
