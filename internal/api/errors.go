package api

import (
	"encoding/json"
	"net/http"

	"IVA-Bank/internal/agent"
	"IVA-Bank/internal/bank"
	xerrors "IVA-Bank/internal/errors"
)

type detail struct {
	Detail string `json:"detail"`
}

// statusFor 将错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case xerrors.CodeInvalidArgument, xerrors.CodeConflict, xerrors.CodeFailedPrecondition,
		bank.CodeEmailTaken, bank.CodeInsufficientFunds:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, bank.CodeCustomerNotFound, bank.CodeAccountNotFound:
		return http.StatusNotFound
	case xerrors.CodeUnauthenticated:
		return http.StatusUnauthorized
	case xerrors.CodePermissionDenied:
		return http.StatusForbidden
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeUpstreamFailure, agent.CodeAgentStepsExceeded:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	coded, ok := xerrors.From(err)
	if !ok {
		s.logger.Error("请求处理失败", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, detail{Detail: "Internal server error"})
		return
	}
	status := statusFor(coded.Code())
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", "path", r.URL.Path, "code", coded.Code(), "error", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, detail{Detail: coded.Message()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
