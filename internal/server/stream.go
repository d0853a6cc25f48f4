package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/jobs"
	"github.com/raysh454/auditai/internal/logging"
)

const wsWriteTimeout = 10 * time.Second

type sseLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     eventbus.Level `json:"level"`
	Message   string         `json:"message"`
}

// writeSSE frames ev as a named server-sent event whose id is the sequence
// number.
func writeSSE(w io.Writer, ev eventbus.Event) error {
	var data any
	switch ev.Type {
	case eventbus.TypeLog:
		data = sseLog{Timestamp: ev.Timestamp, Level: ev.Log.Level, Message: ev.Log.Message}
	case eventbus.TypeDone:
		data = ev.Done
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, payload)
	return err
}

// handleScanEvents godoc
// @Summary Stream scan events
// @Description Server-sent events: "log" events, then one "done" event, then the stream closes.
// @Tags scans
// @Produce text/event-stream
// @Param id path string true "Scan id"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} ErrorResponse
// @Router /scan/{id}/events [get]
func (s *Server) handleScanEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, jobs.KindScan)
}

// handleAnalysisEvents godoc
// @Summary Stream analysis events
// @Description Server-sent events; raw model output arrives as "log" events with level "stream".
// @Tags analysis
// @Produce text/event-stream
// @Param id path string true "Analysis id"
// @Success 200 {string} string "event stream"
// @Failure 404 {object} ErrorResponse
// @Router /analysis/{id}/events [get]
func (s *Server) handleAnalysisEvents(w http.ResponseWriter, r *http.Request) {
	s.serveEvents(w, r, jobs.KindAnalysis)
}

func (s *Server) subscribe(id string, kind jobs.Kind) (*eventbus.Subscription, error) {
	job, err := s.app.Jobs.Get(id)
	if err != nil {
		return nil, err
	}
	if kind != "" && job.Kind() != kind {
		return nil, jobs.ErrNotFound
	}
	sub, err := s.app.Bus.Subscribe(id)
	if errors.Is(err, eventbus.ErrUnknownJob) {
		return nil, jobs.ErrNotFound
	}
	return sub, err
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, kind jobs.Kind) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeFailure(w, "streaming events", errors.New("response writer cannot flush"))
		return
	}
	sub, err := s.subscribe(id, kind)
	if err != nil {
		s.writeFailure(w, "subscribing to events", err)
		return
	}
	defer sub.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.KeepAlive)
		ev, err := sub.Next(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := writeSSE(w, ev); err != nil {
				return
			}
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, eventbus.ErrSubscriberOverflow):
			s.logger.Warn("event subscriber overflowed", logging.Field{Key: "job_id", Value: id})
			payload, _ := json.Marshal(ErrorResponse{Error: err.Error(), ErrorCode: CodeSubscriberOverflow})
			_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
			flusher.Flush()
			return
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded):
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		default:
			return
		}
		flusher.Flush()
	}
}

// handleJobWS godoc
// @Summary Stream job events over a WebSocket
// @Description One JSON event per message; the server closes after the done event.
// @Tags jobs
// @Param id path string true "Job id"
// @Router /ws/jobs/{id} [get]
func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sub, err := s.subscribe(id, "")
	if err != nil {
		s.writeFailure(w, "subscribing to events", err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// The read loop notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	closeWith := func(code int, text string) {
		msg := websocket.FormatCloseMessage(code, text)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
	}

	for {
		ev, err := sub.Next(ctx)
		switch {
		case err == nil:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case errors.Is(err, io.EOF):
			closeWith(websocket.CloseNormalClosure, "done")
			return
		case errors.Is(err, eventbus.ErrSubscriberOverflow):
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			_ = conn.WriteJSON(ErrorResponse{Error: err.Error(), ErrorCode: CodeSubscriberOverflow})
			closeWith(websocket.CloseTryAgainLater, "subscriber overflow")
			return
		default:
			closeWith(websocket.CloseGoingAway, "")
			return
		}
	}
}
