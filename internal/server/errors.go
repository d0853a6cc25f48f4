package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/raysh454/auditai/internal/analysis"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/provider"
	"github.com/raysh454/auditai/internal/scan"
)

// Error codes of ErrorResponse.
const (
	CodeInvalidJSON            = "INVALID_JSON"
	CodeMissingAcknowledgement = "MISSING_ACKNOWLEDGEMENT"
	CodeUnknownProvider        = "UNKNOWN_PROVIDER"
	CodeNotFound               = "NOT_FOUND"
	CodeScanNotReady           = "SCAN_NOT_READY"
	CodeAlreadyRunning         = "ALREADY_RUNNING"
	CodeReportNotReady         = "REPORT_NOT_READY"
	CodeNoProvider             = "NO_PROVIDER_AVAILABLE"
	CodeShuttingDown           = "SHUTTING_DOWN"
	CodeSubscriberOverflow     = "SUBSCRIBER_OVERFLOW"
	CodeInternal               = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, ErrorCode: code})
}

// writeFailure classifies err from a coordinator call. Unclassified errors
// are internal faults: logged and answered with 500.
func (s *Server) writeFailure(w http.ResponseWriter, op string, err error) {
	var targetErr *scan.TargetError
	switch {
	case errors.As(err, &targetErr):
		writeError(w, http.StatusBadRequest, targetErr.Code, targetErr.Reason)
	case errors.Is(err, provider.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, CodeUnknownProvider, err.Error())
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, analysis.ErrScanNotReady):
		writeError(w, http.StatusConflict, CodeScanNotReady, err.Error())
	case errors.Is(err, analysis.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, CodeAlreadyRunning, err.Error())
	case errors.Is(err, provider.ErrNoProviderAvailable):
		writeError(w, http.StatusServiceUnavailable, CodeNoProvider, err.Error())
	case errors.Is(err, scan.ErrClosed), errors.Is(err, analysis.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "service is shutting down")
	default:
		s.logger.Error(op, logging.Err(err))
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
