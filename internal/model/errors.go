package model

import (
	"errors"
	"fmt"
)

// ErrorKind - категория доменной ошибки, определяет HTTP статус на границе
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindInvalidState ErrorKind = "invalid_state"
	KindConflict     ErrorKind = "conflict"
	KindValidation   ErrorKind = "validation"
)

// Сообщения, которые видит клиент
const (
	MsgSlotNotFound         = "slot not found"
	MsgBookingNotFound      = "booking not found"
	MsgSlotPrivate          = "slot is private"
	MsgSlotUnavailable      = "slot no longer available"
	MsgSlotFullyBooked      = "slot fully booked"
	MsgPastSlot             = "cannot book a past slot"
	MsgAlreadyBooked        = "already booked"
	MsgTooManyAttempts      = "too many concurrent booking attempts"
	MsgBookingNotCancelable = "booking cannot be cancelled"
	MsgCancelNotAllowed     = "not allowed to cancel this booking"
	MsgCancellationWindow   = "must cancel at least 24 hours in advance"
	MsgSlotOverlaps         = "slot overlaps an existing slot"
	MsgAdminOnly            = "administrator role required"
	MsgScheduleNotFound     = "recurring schedule not found"
	MsgNotParticipant       = "not a participant of this slot"
	MsgSlotClosed           = "slot is already cancelled or completed"
	MsgBookingForbidden     = "not allowed to access this booking"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
	// Retryable - тот же запрос может пройти при повторе
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func NotFound(msg string) *Error     { return newError(KindNotFound, msg) }
func Forbidden(msg string) *Error    { return newError(KindForbidden, msg) }
func InvalidState(msg string) *Error { return newError(KindInvalidState, msg) }
func Conflict(msg string) *Error     { return newError(KindConflict, msg) }
func Validation(msg string) *Error   { return newError(KindValidation, msg) }

// TooManyAttempts - попытки оптимистичного обновления исчерпаны, запрос можно повторить
func TooManyAttempts() *Error {
	e := Conflict(MsgTooManyAttempts)
	e.Retryable = true
	return e
}

// Validationf - Validation с форматированием
func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// KindOf возвращает категорию ошибки или пустую строку для инфраструктурных ошибок
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf возвращает клиентское сообщение доменной ошибки
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}

// IsRetryable сообщает, что ошибка временная и запрос стоит повторить
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsForbidden(err error) bool    { return KindOf(err) == KindForbidden }
func IsInvalidState(err error) bool { return KindOf(err) == KindInvalidState }
func IsConflict(err error) bool     { return KindOf(err) == KindConflict }
func IsValidation(err error) bool   { return KindOf(err) == KindValidation }
