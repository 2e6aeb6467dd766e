package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type ErrorCode string

const (
	ERR_REQUEST_TIMEOUT    ErrorCode = "REQUEST_TIMEOUT"
	ERR_INVALID_REQUEST    ErrorCode = "INVALID_REQUEST"
	ERR_TASK_NOT_FOUND     ErrorCode = "TASK_NOT_FOUND"
	ERR_DELEGATE_NOT_FOUND ErrorCode = "DELEGATE_NOT_FOUND"
)

// DispatchError 业务错误，Params 给调用方展示用（例如超时时的调用者名称）
type DispatchError struct {
	Code   ErrorCode
	Params map[string]string
	cause  error
}

func (e *DispatchError) Error() string {
	if len(e.Params) == 0 && e.cause == nil {
		return string(e.Code)
	}
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, k+"="+e.Params[k])
	}
	if e.cause != nil {
		parts = append(parts, "cause="+e.cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, strings.Join(parts, " "))
}

func (e *DispatchError) Unwrap() error { return e.cause }

// newError kv 为成对的参数名和值
func newError(code ErrorCode, cause error, kv ...string) *DispatchError {
	e := &DispatchError{Code: code, cause: cause}
	if len(kv) > 1 {
		e.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Params[kv[i]] = kv[i+1]
		}
	}
	return e
}

func IsCode(err error, code ErrorCode) bool {
	var de *DispatchError
	return errors.As(err, &de) && de.Code == code
}

func CodeOf(err error) (ErrorCode, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
