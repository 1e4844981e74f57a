package engine

import "errors"

// Error taxonomy for the command pipeline. Everything is caught and
// translated to a user-facing reply at the engine boundary; nothing
// propagates to the transport layer.
var (
	// ErrValidation marks a malformed or unsupported command.
	ErrValidation = errors.New("validation failed")
	// ErrPermission marks an unsatisfied KYC or PIN gate.
	ErrPermission = errors.New("permission denied")
	// ErrInsufficientBalance marks a failed pre-flight balance check.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidRecipient marks a recipient that could not be resolved.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrInvalidPIN marks a wrong PIN entry.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrExternalCapability marks a failed custody, KYC or payment call.
	ErrExternalCapability = errors.New("external capability failed")
)
