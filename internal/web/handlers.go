package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/freight/internal/core"
	"github.com/JonMunkholm/freight/internal/core/rates"
	"github.com/JonMunkholm/freight/internal/web/templates"
)

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and headers.
const multipartOverhead = 1 << 20

// render writes a page inside the shared layout.
func render(w http.ResponseWriter, r *http.Request, status int, title, nav string, body templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.Layout(title, nav, body).Render(r.Context(), w); err != nil {
		slog.Error("render page", "path", r.URL.Path, "error", err)
	}
}

// renderPartial writes a fragment without the layout, for HTMX swaps.
func renderPartial(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render partial", "path", r.URL.Path, "error", err)
	}
}

// handleCalculator renders the quote form.
func (s *Server) handleCalculator(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "运费计算器", templates.NavCalculator, templates.Calculator(s.calculatorData()))
}

// handleQuoteForm answers a quote submitted from the calculator form.
func (s *Server) handleQuoteForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", core.ErrInvalidQuery, err), http.StatusBadRequest)
		return
	}

	data := s.calculatorData()
	data.Origin = r.PostFormValue("origin")
	data.Destination = r.PostFormValue("destination")
	data.Weight = r.PostFormValue("weight")

	status := http.StatusOK
	quote, err := s.quoteFromForm(r.Context(), data.Origin, data.Destination, data.Weight)
	if err != nil {
		status = statusFor(err)
		msg := core.MapError(err)
		data.Error = &msg
		slog.Debug("quote rejected", "origin", data.Origin, "destination", data.Destination, "weight", data.Weight, "code", msg.Code)
	} else {
		data.Quote = &quote
	}

	if isHTMX(r) {
		if data.Error != nil {
			renderPartial(w, r, status, templates.ErrorAlert(data.Error.Message, data.Error.Action, data.Error.Code))
			return
		}
		renderPartial(w, r, status, templates.QuoteResult(quote))
		return
	}
	render(w, r, status, "运费计算器", templates.NavCalculator, templates.Calculator(data))
}

// quoteFromForm parses the weight field and runs the quote.
func (s *Server) quoteFromForm(ctx context.Context, origin, destination, weight string) (core.Quote, error) {
	wt, err := parseWeight(weight)
	if err != nil {
		return core.Quote{}, err
	}
	return s.service.Quote(ctx, rates.Query{Origin: origin, Destination: destination, Weight: wt})
}

func (s *Server) calculatorData() templates.CalculatorData {
	return templates.CalculatorData{
		Status:  s.service.Status(),
		Options: s.service.Options(),
	}
}

// handleDataPage renders the data source status, upload form and preview.
func (s *Server) handleDataPage(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, "数据管理", templates.NavData, templates.DataPage(s.dataPageData(nil, nil)))
}

// handleUploadForm loads a workbook posted from the data page.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	result, err := s.upload(w, r)
	if err != nil {
		msg := core.MapError(err)
		render(w, r, statusFor(err), "数据管理", templates.NavData, templates.DataPage(s.dataPageData(nil, &msg)))
		return
	}
	render(w, r, http.StatusOK, "数据管理", templates.NavData, templates.DataPage(s.dataPageData(&result, nil)))
}

// handleResetForm clears the uploaded data and goes back to the default file.
func (s *Server) handleResetForm(w http.ResponseWriter, r *http.Request) {
	result, err := s.reset(r)
	if err != nil {
		msg := core.MapError(err)
		render(w, r, statusFor(err), "数据管理", templates.NavData, templates.DataPage(s.dataPageData(nil, &msg)))
		return
	}
	render(w, r, http.StatusOK, "数据管理", templates.NavData, templates.DataPage(s.dataPageData(&result, nil)))
}

func (s *Server) dataPageData(result *core.LoadResult, userErr *core.UserMessage) templates.DataPageData {
	return templates.DataPageData{
		Status:  s.service.Status(),
		Preview: s.service.Preview(0),
		History: s.service.History(),
		Result:  result,
		Error:   userErr,
	}
}

// upload reads the "file" form field and hands it to the service, bounded
// by the configured upload timeout.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) (core.LoadResult, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return core.LoadResult{}, fmt.Errorf("%w: %v", core.ErrFileTooLarge, err)
		}
		return core.LoadResult{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return core.LoadResult{}, fmt.Errorf("%w: %v", core.ErrNoFile, err)
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}

	return s.service.LoadUpload(ctx, uploadName(header), file)
}

// reset clears the uploaded data, bounded by the configured reset timeout.
func (s *Server) reset(r *http.Request) (core.LoadResult, error) {
	ctx := WithRequestMetadata(r.Context(), r)
	if s.cfg.Upload.ResetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.ResetTimeout)
		defer cancel()
	}
	return s.service.Reset(ctx)
}

func uploadName(h *multipart.FileHeader) string {
	if h == nil || h.Filename == "" {
		return "upload.xlsx"
	}
	return h.Filename
}

// parseWeight parses a weight field. Blank and non-numeric input is an
// invalid query.
func parseWeight(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: weight is required", core.ErrInvalidQuery)
	}
	w, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: weight %q is not a number", core.ErrInvalidQuery, s)
	}
	return w, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
