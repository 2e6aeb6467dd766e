package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/delegate/infra/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/dao"
	"github.com/grand-thief-cash/chaos/app/projects/delegate/internal/service"
)

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

type listBody[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, errorBody{Error: msg})
}

// writeServiceErr 业务错误码映射到 HTTP 状态
func writeServiceErr(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var de *service.DispatchError
	switch {
	case errors.As(err, &de):
		body.Code, body.Params = string(de.Code), de.Params
		switch de.Code {
		case service.ERR_INVALID_REQUEST:
			status = http.StatusBadRequest
		case service.ERR_TASK_NOT_FOUND, service.ERR_DELEGATE_NOT_FOUND:
			status = http.StatusNotFound
		case service.ERR_REQUEST_TIMEOUT:
			status = http.StatusGatewayTimeout
		}
	case errors.Is(err, dao.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logging.Error(ctx, "request failed", zap.Error(err))
	}
	writeJSONStatus(w, status, body)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	limit, _ = strconv.Atoi(q.Get("limit"))
	offset, _ = strconv.Atoi(q.Get("offset"))
	return limit, offset
}
