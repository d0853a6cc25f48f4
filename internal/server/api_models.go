package server

// StartScanRequest starts a scan. Authorized must be true: the caller
// confirms permission to probe the target.
type StartScanRequest struct {
	Target     string `json:"target" example:"https://example.com"`
	Authorized bool   `json:"authorized" example:"true"`
}

type StartScanResponse struct {
	ScanID string `json:"scan_id" example:"6f1c2a9e-2b61-4d43-9a57-4d2b8f0b6c11"`
}

// StartAnalysisRequest starts an AI analysis of a finished scan. An empty
// provider selects the first available one.
type StartAnalysisRequest struct {
	ScanID   string `json:"scan_id" example:"6f1c2a9e-2b61-4d43-9a57-4d2b8f0b6c11"`
	Provider string `json:"provider" example:"ollama"`
}

type StartAnalysisResponse struct {
	AnalysisID string `json:"analysis_id" example:"0b7e4d3c-5a0f-4a53-8c0a-7c9d2f7e1a42"`
}

// PendingResponse is returned while a job is still pending or running.
type PendingResponse struct {
	Status string `json:"status" example:"running"`
}

// FailedResponse is returned for a job that ended in error.
type FailedResponse struct {
	Status    string `json:"status" example:"error"`
	ErrorKind string `json:"error_kind" example:"provider_unavailable"`
	Detail    string `json:"detail" example:"provider unreachable: connection refused"`
	RawOutput string `json:"raw_output,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error     string `json:"error" example:"scan not found"`
	ErrorCode string `json:"error_code" example:"NOT_FOUND"`
}
