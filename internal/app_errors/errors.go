package app_errors

import (
	"errors"
	"fmt"
)

var (
	ErrRateLimiter        = errors.New("rate limiter error")
	ErrNotFound           = errors.New("not found")
	ErrNoData             = errors.New("no data for the requested period")
	ErrUnrecognizedFormat = errors.New("unrecognized response format")
	ErrUnsupportedMarket  = errors.New("unsupported marketplace")
	ErrMissingCredentials = errors.New("missing marketplace credentials")
)

// Kind классифицирует ошибку по тому, как на неё реагирует вызывающий код.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient - сбой внешнего сервиса, повтор произойдет в следующем цикле.
	KindTransient
	// KindValidation - некорректные входные данные (строка каталога, ссылка, маркетплейс).
	KindValidation
	// KindConflict - нарушение уникальности, разрешается upsert'ом.
	KindConflict
	// KindFatal - ошибка конфигурации, процесс должен остановиться.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error связывает ошибку с операцией и её видом.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Transient(op string, err error) error {
	return New(KindTransient, op, err)
}

func Validation(op string, err error) error {
	return New(KindValidation, op, err)
}

// KindOf возвращает вид первой ошибки *Error в цепочке.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}
