package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/palantir/palantir-compute-module-wine-enricher/internal/jobs"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/pipeline"
	"github.com/palantir/palantir-compute-module-wine-enricher/internal/version"
	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/table"
)

// formFile is the multipart field carrying the table.
const formFile = "csv"

var errNotCSV = errors.New("file must have a .csv extension")

type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	ActiveJobs int    `json:"activeJobs"`
}

type previewResponse struct {
	table.Preview
	ProtectedColumns []string `json:"protectedColumns"`
}

type processResponse struct {
	ProcessID        string   `json:"processId"`
	CSV              string   `json:"csv"`
	Headers          []string `json:"headers"`
	ProtectedColumns []string `json:"protectedColumns"`
	CompletedRows    int      `json:"completedRows"`
	TotalRows        int      `json:"totalRows"`
	FilledRows       int      `json:"filledRows"`
	SkippedRows      int      `json:"skippedRows"`
	FailedRows       int      `json:"failedRows"`
	Cancelled        bool     `json:"cancelled"`
}

type statusResponse struct {
	ProcessID     string     `json:"processId"`
	Active        bool       `json:"active"`
	Cancelled     bool       `json:"cancelled"`
	CompletedRows int        `json:"completedRows"`
	TotalRows     int        `json:"totalRows"`
	Started       *time.Time `json:"started,omitempty"`
}

type cancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Version:    version.Current,
		ActiveJobs: s.limiter.Active(),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	text, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, uploadStatus(err))
		return
	}
	t, err := s.runner.Parse(text)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{
		Preview:          t.Preview(s.opts.PreviewRows),
		ProtectedColumns: s.runner.Classify(t.Headers).Headers(),
	})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	text, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, uploadStatus(err))
		return
	}

	processID := strings.TrimSpace(r.FormValue("process_id"))
	if processID != "" {
		if _, err := uuid.Parse(processID); err != nil {
			s.respondError(w, r, fmt.Errorf("process_id must be a UUID: %w", err), http.StatusBadRequest)
			return
		}
	}
	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = s.opts.DefaultLanguage
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		status := http.StatusTooManyRequests
		if !errors.Is(err, ErrTooManyJobs) {
			status = http.StatusServiceUnavailable
		}
		s.respondError(w, r, err, status)
		return
	}
	defer s.limiter.Release()

	res, err := s.runner.RunCSV(r.Context(), text, language, pipeline.Options{ProcessID: processID})
	switch {
	case errors.Is(err, table.ErrMalformedInput):
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	case errors.Is(err, jobs.ErrJobExists):
		s.respondError(w, r, err, http.StatusConflict)
		return
	case err != nil:
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		ProcessID:        res.ProcessID,
		CSV:              res.CSV,
		Headers:          res.Headers,
		ProtectedColumns: res.ProtectedColumns,
		CompletedRows:    res.CompletedRows,
		TotalRows:        res.TotalRows,
		FilledRows:       res.FilledRows,
		SkippedRows:      res.SkippedRows,
		FailedRows:       res.FailedRows,
		Cancelled:        res.Cancelled,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	st, ok := s.runner.Status(processID)
	if !ok {
		writeJSON(w, http.StatusOK, statusResponse{ProcessID: processID})
		return
	}
	started := st.Started
	writeJSON(w, http.StatusOK, statusResponse{
		ProcessID:     st.ProcessID,
		Active:        true,
		Cancelled:     st.Cancelled,
		CompletedRows: st.CompletedRows,
		TotalRows:     st.TotalRows,
		Started:       &started,
	})
}

// handleCancel always succeeds; cancelling an unknown or finished job is a no-op.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	msg := "cancellation requested"
	if !s.runner.RequestCancel(processID) {
		msg = "no active process with that id"
	}
	s.logger.Info("cancel requested", zap.String("process_id", processID), zap.String("result", msg))
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, Message: msg})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "processID")
	s.runner.Cleanup(processID)
	writeJSON(w, http.StatusOK, cancelResponse{Success: true, Message: "process record cleared"})
}

// readUpload returns the text of the multipart "csv" file.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return "", fmt.Errorf("parse upload: %w", err)
	}
	f, hdr, err := r.FormFile(formFile)
	if err != nil {
		return "", fmt.Errorf("missing %q file: %w", formFile, err)
	}
	defer f.Close()
	if !strings.EqualFold(filepath.Ext(hdr.Filename), ".csv") {
		return "", errNotCSV
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return string(b), nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
