package processor

import "errors"

// Errors reported by cover extraction. Every error returned by Extract wraps exactly one of them.
var (
	// ErrIO - path is not readable neither as archive nor as plain file, or content is empty.
	ErrIO = errors.New("unable to read book content")
	// ErrParse - content is not well-formed XML or has no root element.
	ErrParse = errors.New("unable to parse book")
	// ErrQuery - structural query could not be evaluated.
	ErrQuery = errors.New("unable to evaluate query")
	// ErrNotFound - cover image element, its reference or referenced binary is absent.
	ErrNotFound = errors.New("cover not found")
	// ErrUnsupported - cover references something outside of the book.
	ErrUnsupported = errors.New("non-inline cover images are not supported")
	// ErrDecode - binary content is not valid base64.
	ErrDecode = errors.New("unable to decode cover")
)
