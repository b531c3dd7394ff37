package provider

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes retrieval failures for user-facing reporting.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network"
	KindAuthRequired ErrorKind = "auth_required"
	KindUnsupported  ErrorKind = "unsupported"
	KindSSL          ErrorKind = "ssl"
	KindTooLarge     ErrorKind = "too_large"
	KindGeneric      ErrorKind = "generic"
)

// Error wraps a retrieval failure with its category.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a category.
func NewError(kind ErrorKind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a categorized error from a format string.
func Errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Categorize returns the category of err, or KindGeneric for anything
// uncategorized.
func Categorize(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindGeneric
}

// UserMessage maps an error to the short non-technical text shown to the
// requester. Raw error detail goes to the operator channel only.
func UserMessage(err error) string {
	switch Categorize(err) {
	case KindTooLarge:
		return "The file is too large to deliver (over 50 MB). Try a lower quality."
	case KindAuthRequired:
		return "This content requires sign-in cookies that are not configured."
	case KindUnsupported:
		return "This link is not supported or could not be parsed."
	case KindNetwork:
		return "A network problem interrupted the download. Please try again later."
	case KindSSL:
		return "A secure connection to the source could not be established."
	default:
		return "Something went wrong while downloading. Please try again later."
	}
}
