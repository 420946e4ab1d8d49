package models

import "errors"

// Error taxonomy shared by the repository, service and API layers. Wrap these
// with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrAgentNotPublished = errors.New("agent not published")
	ErrUnauthenticated   = errors.New("unauthenticated")
)
