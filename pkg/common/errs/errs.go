// Package errs defines the typed failure categories surfaced by the service,
// so that HTTP handlers can distinguish re-auth from not-found from
// upstream-unavailable responses.
package errs

import (
	"errors"
	"fmt"
)

type AuthReason string

const (
	StateMismatch       AuthReason = "state_mismatch"
	TokenExchangeFailed AuthReason = "token_exchange_failed"
	InvalidToken        AuthReason = "invalid_token"
	Unauthenticated     AuthReason = "unauthenticated"
)

type AuthError struct {
	Reason AuthReason
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("auth: %s", e.Reason)
	}
	return fmt.Sprintf("auth: %s: %s", e.Reason, e.Detail)
}

func Auth(reason AuthReason, format string, args ...interface{}) error {
	return &AuthError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func IsAuth(err error, reason AuthReason) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Reason == reason
}

type MappingReason string

const (
	OrphanSource    MappingReason = "orphan_source"
	MappingNotFound MappingReason = "not_found"
)

type MappingError struct {
	Reason     MappingReason
	SourceCode string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping: %s: %s", e.Reason, e.SourceCode)
}

func Mapping(reason MappingReason, sourceCode string) error {
	return &MappingError{Reason: reason, SourceCode: sourceCode}
}

func IsMapping(err error, reason MappingReason) bool {
	var me *MappingError
	return errors.As(err, &me) && me.Reason == reason
}

type SinkReason string

const (
	SinkRejected SinkReason = "rejected"
	SinkTimeout  SinkReason = "timeout"
)

type SinkError struct {
	Reason SinkReason
	Status int
	Detail string
}

func (e *SinkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("sink: %s: status %d", e.Reason, e.Status)
	}
	return fmt.Sprintf("sink: %s: %s", e.Reason, e.Detail)
}

func Sink(reason SinkReason, status int, detail string) error {
	return &SinkError{Reason: reason, Status: status, Detail: detail}
}

func IsSink(err error) bool {
	var se *SinkError
	return errors.As(err, &se)
}

// StoreError marks the underlying storage as unavailable. It is fatal for
// the request and maps to a 5xx response.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func Store(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

func IsStore(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
