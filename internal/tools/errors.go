package tools

import "errors"

// Registration errors.
var (
	ErrToolNameEmpty         = errors.New("tool has no name")
	ErrToolExecuteNil        = errors.New("tool has no execute function")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrSchemaMismatch        = errors.New("schema requires undeclared argument")
)

// Call errors. ErrToolFailed wraps every failure of a registered tool,
// timeouts included.
var (
	ErrUnknownTool        = errors.New("unknown tool")
	ErrToolFailed         = errors.New("tool failed")
	ErrMissingRequiredArg = errors.New("missing required argument")
	ErrInvalidArgType     = errors.New("invalid argument type")
)
