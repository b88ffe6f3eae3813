// Package fault defines the closed set of failure kinds recorded for every
// terminal job outcome. Kinds are attached at the point of failure so that
// downstream bookkeeping never has to infer them from message text.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a failure category in the summary and failure logs.
type Kind string

const (
	ZipPassword     Kind = "ZipPassword"
	ZipCorrupt      Kind = "ZipCorrupt"
	ZipNotFound     Kind = "ZipNotFound"
	FilenameInvalid Kind = "FilenameInvalid"
	EmpNotFound     Kind = "EmpNotFound"
	UnsupportedFile Kind = "UnsupportedFileType"
	ImageConvert    Kind = "ImageConvertError"
	PdfMerge        Kind = "PdfMergeError"
	PdfEncrypted    Kind = "PdfEncrypted"
	UploadFailed    Kind = "SharePointUploadError"
	PatchFailed     Kind = "SharePointPatchError"
	Unknown         Kind = "UnknownError"
)

// Error carries a failure kind together with a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a fault of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a fault of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf reports the kind carried by err, or Unknown when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
