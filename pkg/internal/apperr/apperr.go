// Package apperr 定义领域错误分类，HTTP 边界与队列处理器都按 Kind 决定行为.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindConflict
	KindRateLimited
	KindTransient
	KindCorrupt
)

// String 返回类别名称.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindCorrupt:
		return "corrupt"
	case KindInternal:
		fallthrough
	default:
		return "internal"
	}
}

// Error 携带类别、操作名与原因的错误.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}

	if e.Op != "" {
		return e.Op + ": " + msg
	}

	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同类别的 *Error 视为相等，便于 errors.Is(err, apperr.NotFound("", "")) 之类的判断.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
	}

	return false
}

// E 创建指定类别的错误.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap 以指定类别包装 err，err 为 nil 时返回 nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// 按类别的构造函数.
func NotFound(op, msg string) *Error    { return E(KindNotFound, op, msg) }
func Forbidden(op, msg string) *Error   { return E(KindForbidden, op, msg) }
func BadRequest(op, msg string) *Error  { return E(KindBadRequest, op, msg) }
func Conflict(op, msg string) *Error    { return E(KindConflict, op, msg) }
func RateLimited(op, msg string) *Error { return E(KindRateLimited, op, msg) }
func Corrupt(op, msg string) *Error     { return E(KindCorrupt, op, msg) }

// Transient 包装可重试的上游错误.
func Transient(op string, err error) error { return Wrap(KindTransient, op, err) }

// Sentinel 仅用于 errors.Is 比较.
var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrRateLimited = &Error{Kind: KindRateLimited}
	ErrTransient   = &Error{Kind: KindTransient}
	ErrCorrupt     = &Error{Kind: KindCorrupt}
)

// kinded 允许其他包的错误类型声明自身类别.
type kinded interface {
	AppKind() Kind
}

// KindOf 返回错误链上第一个可识别的类别，未知错误为 KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	var k kinded
	if errors.As(err, &k) {
		return k.AppKind()
	}

	return KindInternal
}

// IsKind 判断错误类别.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 将类别映射为 HTTP 状态码.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindCorrupt, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Errorf 以格式化消息创建指定类别的错误.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}
