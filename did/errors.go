package did

import "errors"

// Sentinel errors returned by the engine and its drivers. Callers branch
// with errors.Is; wrapped messages carry the offending identifier.
var (
	// ErrUnsupportedMethod marks a method no registered driver accepts.
	ErrUnsupportedMethod = errors.New("unsupported did method")
	// ErrKeyGeneration marks a failure to obtain key material for create.
	ErrKeyGeneration = errors.New("key generation failed")
	// ErrNotFound marks an identifier the responsible source does not know.
	ErrNotFound = errors.New("did not found")
	// ErrMalformed marks syntactically invalid identifiers or documents.
	ErrMalformed = errors.New("malformed did")
	// ErrTransport marks network-level resolution failures.
	ErrTransport = errors.New("did transport failure")
	// ErrDeactivated marks use of an identifier that has been deactivated.
	ErrDeactivated = errors.New("did deactivated")
)
