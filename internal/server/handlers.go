package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/model"
	"github.com/raysh454/auditai/internal/report"
	"github.com/raysh454/auditai/internal/tracing"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 50
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// handleHealth godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Scans

// handleStartScan godoc
// @Summary Start a security scan
// @Tags scans
// @Accept json
// @Produce json
// @Param request body StartScanRequest true "Target and authorization acknowledgement"
// @Success 202 {object} StartScanResponse
// @Failure 400 {object} ErrorResponse
// @Router /scan [post]
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body StartScanRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON")
		return
	}
	if !body.Authorized {
		writeError(w, http.StatusBadRequest, CodeMissingAcknowledgement,
			`you must confirm authorization to scan the target: set "authorized": true`)
		return
	}

	id, err := s.app.Scans.Start(r.Context(), body.Target)
	if err != nil {
		s.writeFailure(w, "starting scan", err)
		return
	}
	s.logger.Info("started scan", logging.Field{Key: "job_id", Value: id})
	writeJSON(w, http.StatusAccepted, StartScanResponse{ScanID: id})
}

// handleGetScan godoc
// @Summary Get a scan result
// @Tags scans
// @Produce json
// @Param id path string true "Scan id"
// @Success 200 {object} model.ScanResult
// @Success 202 {object} PendingResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} FailedResponse
// @Router /scan/{id} [get]
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.app.Scans.GetResult(id)
	s.writeResult(w, id, res, err)
}

// writeResult answers a result lookup: 200 with the result, 202 while the
// job runs, 409 when it failed.
func (s *Server) writeResult(w http.ResponseWriter, id string, result any, err error) {
	var failed *jobs.FailedError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, jobs.ErrNotReady):
		status := jobs.StatusRunning
		if job, getErr := s.app.Jobs.Get(id); getErr == nil {
			status = job.Status()
		}
		writeJSON(w, http.StatusAccepted, PendingResponse{Status: string(status)})
	case errors.As(err, &failed):
		resp := FailedResponse{
			Status:    string(jobs.StatusError),
			ErrorKind: string(failed.Kind),
			Detail:    failed.Detail,
		}
		if job, getErr := s.app.Jobs.Get(id); getErr == nil {
			resp.RawOutput = job.Info().RawOutput
		}
		writeJSON(w, http.StatusConflict, resp)
	default:
		s.writeFailure(w, "getting result", err)
	}
}

// handleListScans godoc
// @Summary List recent scans
// @Description Live scans merged with archived ones, newest first. Results are omitted.
// @Tags scans
// @Produce json
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {array} jobs.Info
// @Router /scans [get]
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}

	seen := make(map[string]bool)
	var out []jobs.Info
	for _, info := range s.app.Jobs.List(jobs.KindScan) {
		seen[info.ID] = true
		out = append(out, info)
	}
	if s.app.Archive != nil {
		archived, err := s.app.Archive.ListRecent(r.Context(), jobs.KindScan, limit)
		if err != nil {
			s.logger.Warn("listing archived scans", logging.Err(err))
		}
		for _, info := range archived {
			if !seen[info.ID] {
				out = append(out, info)
			}
		}
	}

	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Result = nil
		out[i].RawOutput = ""
	}
	if out == nil {
		out = []jobs.Info{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleScanReport godoc
// @Summary Download the PDF report of a scan
// @Tags reports
// @Produce application/pdf
// @Param id path string true "Scan id"
// @Param analysis query string false "Analysis id to include"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /scan/{id}/report.pdf [get]
func (s *Server) handleScanReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scanResult, ok := s.reportScan(w, id)
	if !ok {
		return
	}

	var analysisResult *model.AnalysisResult
	if aid := r.URL.Query().Get("analysis"); aid != "" {
		job, err := s.app.Jobs.Get(aid)
		if err != nil || job.Kind() != jobs.KindAnalysis || job.Info().ScanID != id {
			writeError(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("analysis %s of scan %s not found", aid, id))
			return
		}
		if analysisResult, ok = s.reportAnalysis(w, aid); !ok {
			return
		}
	}
	s.writePDF(w, r, "auditai-report-"+id+".pdf", scanResult, analysisResult)
}

// Analysis

// handleProviderStatus godoc
// @Summary AI provider availability
// @Tags analysis
// @Produce json
// @Success 200 {object} map[string]provider.Status
// @Router /api/ai/providers/status [get]
func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Providers.Statuses(r.Context()))
}

// handleStartAnalysis godoc
// @Summary Start an AI analysis of a finished scan
// @Tags analysis
// @Accept json
// @Produce json
// @Param request body StartAnalysisRequest true "Scan and provider"
// @Success 202 {object} StartAnalysisResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /analysis [post]
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var body StartAnalysisRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON")
		return
	}

	id, err := s.app.Analyses.Start(r.Context(), body.ScanID, body.Provider)
	if err != nil {
		s.writeFailure(w, "starting analysis", err)
		return
	}
	s.logger.Info("started analysis",
		logging.Field{Key: "job_id", Value: id},
		logging.Field{Key: "scan_id", Value: body.ScanID})
	writeJSON(w, http.StatusAccepted, StartAnalysisResponse{AnalysisID: id})
}

// handleGetAnalysis godoc
// @Summary Get an analysis result
// @Tags analysis
// @Produce json
// @Param id path string true "Analysis id"
// @Success 200 {object} model.AnalysisResult
// @Success 202 {object} PendingResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} FailedResponse
// @Router /analysis/{id} [get]
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.app.Analyses.GetResult(id)
	s.writeResult(w, id, res, err)
}

// handleAnalysisReport godoc
// @Summary Download the PDF report of a scan with its analysis
// @Tags reports
// @Produce application/pdf
// @Param id path string true "Analysis id"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /analysis/{id}/report.pdf [get]
func (s *Server) handleAnalysisReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	analysisResult, ok := s.reportAnalysis(w, id)
	if !ok {
		return
	}
	job, err := s.app.Jobs.Get(id)
	if err != nil {
		s.writeFailure(w, "getting analysis", err)
		return
	}
	scanID := job.Info().ScanID
	scanResult, ok := s.reportScan(w, scanID)
	if !ok {
		return
	}
	s.writePDF(w, r, "auditai-report-"+scanID+".pdf", scanResult, analysisResult)
}

func (s *Server) reportScan(w http.ResponseWriter, id string) (*model.ScanResult, bool) {
	res, err := s.app.Scans.GetResult(id)
	if err != nil {
		s.writeReportFailure(w, "scan", id, err)
		return nil, false
	}
	return res, true
}

func (s *Server) reportAnalysis(w http.ResponseWriter, id string) (*model.AnalysisResult, bool) {
	res, err := s.app.Analyses.GetResult(id)
	if err != nil {
		s.writeReportFailure(w, "analysis", id, err)
		return nil, false
	}
	return res, true
}

func (s *Server) writeReportFailure(w http.ResponseWriter, what, id string, err error) {
	var failed *jobs.FailedError
	if errors.Is(err, jobs.ErrNotReady) || errors.As(err, &failed) {
		writeError(w, http.StatusConflict, CodeReportNotReady, fmt.Sprintf("%s %s is not done", what, id))
		return
	}
	s.writeFailure(w, "preparing report", err)
}

func (s *Server) writePDF(w http.ResponseWriter, r *http.Request, filename string, scanResult *model.ScanResult, analysisResult *model.AnalysisResult) {
	_, span := tracing.StartSpan(r.Context(), s.tracer, "report.render",
		attribute.String("scan.target", scanResult.Target),
		attribute.Bool("report.with_analysis", analysisResult != nil))
	pdf, err := report.Render(scanResult, analysisResult)
	span.End()
	if err != nil {
		s.writeFailure(w, "rendering report", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// Jobs

// handleListJobs godoc
// @Summary List live jobs
// @Tags jobs
// @Produce json
// @Param kind query string false "scan or analysis"
// @Success 200 {array} jobs.Info
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.app.Jobs.List(jobs.Kind(r.URL.Query().Get("kind")))
	for i := range list {
		list[i].Result = nil
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetJob godoc
// @Summary Get a live job
// @Tags jobs
// @Produce json
// @Param id path string true "Job id"
// @Success 200 {object} jobs.Info
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{id} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, "getting job", err)
		return
	}
	writeJSON(w, http.StatusOK, job.Info())
}
