package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNoFile
	KindExtraction
	KindEmbedding
	KindVectorStore
	KindCompletion
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNoFile:
		return "no_file"
	case KindExtraction:
		return "extraction"
	case KindEmbedding:
		return "embedding"
	case KindVectorStore:
		return "vector_store"
	case KindCompletion:
		return "completion"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

var (
	ErrNoFile        = errors.New("no file uploaded")
	ErrEmptyQuestion = errors.New("question is required")
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindNoFile, KindValidation, KindExtraction:
		return true
	default:
		return false
	}
}
