package ocr

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a recognition failure.
type Code string

const (
	CodeTimeout           Code = "TIMEOUT"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeEmptyText         Code = "EMPTY_TEXT"
	CodeUnavailable       Code = "PROVIDER_UNAVAILABLE"
	CodeBadResponse       Code = "BAD_RESPONSE"
)

var (
	// ErrTimeout is matched by errors.Is when the recognition deadline expired.
	ErrTimeout = errors.New("recognition timed out")
	// ErrUnsupportedFormat is matched when the file could not be decoded as an image or PDF.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyText is matched when the provider returned nothing usable.
	ErrEmptyText = errors.New("no text recognized")
)

var sentinels = map[Code]error{
	CodeTimeout:           ErrTimeout,
	CodeUnsupportedFormat: ErrUnsupportedFormat,
	CodeEmptyText:         ErrEmptyText,
}

// RecognitionError is returned by every Recognizer.
type RecognitionError struct {
	Code      Code
	Provider  string
	Retryable bool
	Cause     error
}

func (e *RecognitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Provider, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Provider)
}

func (e *RecognitionError) Unwrap() error { return e.Cause }

// Is lets errors.Is match the package sentinels by code.
func (e *RecognitionError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

func newError(provider string, code Code, cause error) *RecognitionError {
	return &RecognitionError{
		Code:      code,
		Provider:  provider,
		Retryable: code == CodeTimeout || code == CodeUnavailable,
		Cause:     cause,
	}
}

// wrapCall classifies an error returned by a provider call.
func wrapCall(ctx context.Context, provider string, err error) *RecognitionError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(provider, CodeTimeout, err)
	}
	return newError(provider, CodeUnavailable, err)
}

// IsRetryable reports whether err is a RecognitionError worth retrying.
func IsRetryable(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re) && re.Retryable
}
