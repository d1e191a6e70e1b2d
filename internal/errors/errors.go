package errors

import "fmt"

// ErrCredentialNotFound is returned when no linked account matches the
// requested (user, provider, uid). The message tells the user how to fix it;
// resolution never substitutes a different account's token.
type ErrCredentialNotFound struct {
	Provider    string
	ExternalUID string
}

func (e *ErrCredentialNotFound) Error() string {
	if e.ExternalUID != "" {
		return fmt.Sprintf("no %s access token found for account %s: please disconnect and reconnect this account", e.Provider, e.ExternalUID)
	}
	return fmt.Sprintf("no %s account connected: please connect your %s account first", e.Provider, e.Provider)
}

// ErrRemoteNotFound is returned when the remote API answers 404 for the
// requested resource.
type ErrRemoteNotFound struct {
	Resource string
}

func (e *ErrRemoteNotFound) Error() string {
	return fmt.Sprintf("remote resource not found: %s", e.Resource)
}

// ErrRemote wraps any other upstream failure, network or non-2xx.
type ErrRemote struct {
	StatusCode int
	Msg        string
}

func (e *ErrRemote) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote API error (status %d): %s", e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("remote API error: %s", e.Msg)
}

// ErrNotAFile is returned when file content is requested on a directory.
type ErrNotAFile struct {
	Path string
}

func (e *ErrNotAFile) Error() string {
	return fmt.Sprintf("path is not a file: %s", e.Path)
}

// ErrDecode is returned when remote file content cannot be decoded as UTF-8
// text.
type ErrDecode struct {
	Path   string
	Reason string
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("failed to decode content of %s: %s", e.Path, e.Reason)
}

// ErrIDMismatch is returned when the client-claimed remote repository id does
// not match the id reported by the remote API.
type ErrIDMismatch struct {
	Claimed int64
	Actual  int64
}

func (e *ErrIDMismatch) Error() string {
	return fmt.Sprintf("repository id mismatch: claimed %d, remote reports %d", e.Claimed, e.Actual)
}

// ErrValidation is returned for malformed or missing caller input.
type ErrValidation struct {
	Msg string
}

func (e *ErrValidation) Error() string {
	return e.Msg
}
