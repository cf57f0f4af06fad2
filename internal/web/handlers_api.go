package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/sheet"
)

const (
	// maxQueryBody bounds the JSON body of a quote request.
	maxQueryBody = 64 << 10

	templateFileName = "freight_template.xlsx"
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	core.Status
	Uploads core.UploadLimiterStatus `json:"uploads"`
}

// handleStatus reports the loaded data source and upload slot usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  s.service.Status(),
		Uploads: s.service.UploadStatus(),
	})
}

// handleOptions returns the sorted origins, destinations and weights.
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Options())
}

// handleRules returns the current rules, optionally limited by ?limit=.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules := s.service.Rules(parseIntParam(r, "limit", 0))
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"total": s.service.Status().Rules,
	})
}

// handlePreview returns the first ?rows= raw rows of the loaded table.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Preview(parseIntParam(r, "rows", 0)))
}

// handleHistory returns recent loads, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"history": s.service.History()})
}

// handleQuote answers {"origin", "destination", "weight"}.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var q rates.Query
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&q); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err), http.StatusBadRequest)
		return
	}

	quote, err := s.service.Quote(r.Context(), q)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// handleUpload loads a multipart "file" upload as the new rule set.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	result, err := s.upload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReset drops the uploaded data and reloads the default file.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	result, err := s.reset(r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDownloadTemplate serves an example workbook in the interval shape.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := sheet.WriteRows(&buf, sheet.TemplateSheet, sheet.TemplateRows()); err != nil {
		respondError(w, r, fmt.Errorf("write template: %w", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+templateFileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("template download interrupted", "error", err)
	}
}
