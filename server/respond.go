package server

import (
	"encoding/json"
	"net/http"

	"EbbFM/logger"
	apperrors "EbbFM/pkg/errors"
)

// writeJSON 输出JSON响应
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 把内部错误码映射为HTTP状态
// NotFound对调用方就是404，停用房间与不存在的房间不可区分。
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		logger.Error("unexpected error", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"code": string(apperrors.CodeUnknown)})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeValidationFailed:
		status = http.StatusBadRequest
	case apperrors.CodePolicyRejected:
		if appErr.Reason == apperrors.ReasonRateLimited {
			status = http.StatusTooManyRequests
		} else {
			status = http.StatusUnprocessableEntity
		}
	case apperrors.CodeStoreUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		status = http.StatusForbidden
	}

	body := map[string]interface{}{
		"code":    appErr.Code,
		"message": appErr.Message,
	}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	if appErr.RetryAfter > 0 {
		body["retryAfterMs"] = appErr.RetryAfter.Milliseconds()
	}
	writeJSON(w, status, body)
}
