package record

import "errors"

var (
	// ErrInvalidSignature means a payload does not verify against its key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrPayloadMismatch means a public key does not derive to the agent ID
	// it claims to speak for.
	ErrPayloadMismatch = errors.New("public key does not derive to claimed agent")

	// ErrSchema means a record is missing a required field or has a field
	// of the wrong shape.
	ErrSchema = errors.New("schema violation")

	// ErrDelegationConstraint means a sub-delegation violates scope, depth,
	// or expiry narrowing rules.
	ErrDelegationConstraint = errors.New("delegation constraint violated")
)
