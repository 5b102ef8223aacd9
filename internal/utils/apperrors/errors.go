package apperrors

import (
	"errors"
	"fmt"
)

// Kind categorizes failures the processing pipeline has to tell apart.
type Kind string

const (
	// KindTimeout marks a vision call that exceeded its time budget. A
	// timeout is a deferral, not a failure: the record stays retryable.
	KindTimeout Kind = "TIMEOUT"
	// KindUpstream marks a non-2xx or transport failure from the vision API.
	KindUpstream Kind = "UPSTREAM"
	// KindNotFound marks a stored image file missing at attempt time.
	KindNotFound Kind = "NOT_FOUND"
	// KindThumbnail marks bad, oversized or corrupt image input during
	// thumbnail generation. Never fatal to the overall upload.
	KindThumbnail Kind = "THUMBNAIL"
	// KindConfiguration marks a missing API key or empty model order.
	KindConfiguration Kind = "CONFIGURATION"
)

// Error is a categorized error carried through the alt-text pipeline.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a categorized error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a categorized error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a categorized error around an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind carried by err, or "" for uncategorized errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsTimeout reports whether err is a time-budget deferral.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsNotFound reports whether err is a missing stored file.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConfiguration reports whether err is a missing-credentials condition.
func IsConfiguration(err error) bool { return KindOf(err) == KindConfiguration }

// IsThumbnail reports whether err came from thumbnail generation.
func IsThumbnail(err error) bool { return KindOf(err) == KindThumbnail }
