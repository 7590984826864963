package model

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки леджера
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindAccountState      ErrorKind = "account_state"
	KindContention        ErrorKind = "contention"
	KindInvariant         ErrorKind = "invariant_violation"
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
)

// Error - доменная ошибка. Сравнение через errors.Is идет по Kind.
type Error struct {
	Kind   ErrorKind
	Reason FailureReason
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrAccountState      = &Error{Kind: KindAccountState}
	ErrContention        = &Error{Kind: KindContention}
	ErrInvariant         = &Error{Kind: KindInvariant}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
)

// NewError собирает доменную ошибку с причиной и сообщением
func NewError(kind ErrorKind, reason FailureReason, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

// NotFound возвращает ошибку отсутствия сущности
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s %v not found", entity, id)}
}

// Contention оборачивает таймаут блокировки
func Contention(err error) *Error {
	return &Error{Kind: KindContention, Msg: "account is busy, retry later", Err: err}
}

// IsRetryable - только конфликт блокировок можно повторять
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// KindOf возвращает Kind доменной ошибки или пустую строку
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf возвращает классифицированную причину отказа
func ReasonOf(err error) FailureReason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
