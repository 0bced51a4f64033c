package models

type ValidationCode string

const (
	CodeInvalidTargetType ValidationCode = "invalid_target_type"
	CodeInvalidName       ValidationCode = "invalid_name"
)

// ValidationError rejects a request before any network activity.
//
// It is a comparable value so the exported sentinels work with errors.Is.
type ValidationError struct {
	Code ValidationCode
}

var (
	ErrInvalidTargetType = ValidationError{Code: CodeInvalidTargetType}
	ErrInvalidName       = ValidationError{Code: CodeInvalidName}
)

func (e ValidationError) Error() string {
	return string(e.Code)
}
