package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"txn-ingest/pkg/ingest"
	"txn-ingest/pkg/query"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
	"txn-ingest/pkg/store"
)

const (
	msgUploadFailed = "the file could not be processed"
	msgQueryFailed  = "the query could not be completed"
	msgNotFound     = "no transactions found"
	msgUnavailable  = "storage is temporarily unavailable"
)

// uploadResponse is returned for a committed upload.
type uploadResponse struct {
	Message  string        `json:"message"`
	UploadID string        `json:"upload_id"`
	Format   ingest.Format `json:"format"`
	Records  int           `json:"records"`
}

// TransactionView is the wire form of a stored transaction. Amount is a
// JSON number with exactly two fractional digits.
type TransactionView struct {
	ID              int64       `json:"id"`
	TransactionID   string      `json:"transactionId"`
	Amount          json.Number `json:"amount"`
	CurrencyCode    string      `json:"currencyCode"`
	TransactionDate time.Time   `json:"transactionDate"`
	Status          status.Code `json:"status"`
}

// Views converts transactions to their wire form.
func Views(txs []record.Transaction) []TransactionView {
	out := make([]TransactionView, len(txs))
	for i, t := range txs {
		out[i] = TransactionView{
			ID:              t.ID,
			TransactionID:   t.TransactionID,
			Amount:          json.Number(t.AmountString()),
			CurrencyCode:    t.CurrencyCode,
			TransactionDate: t.TransactionDate,
			Status:          t.Status,
		}
	}
	return out
}

// handleUpload accepts one file in the multipart field "file".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, ingest.ErrEmptyUpload.Error())
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart request")
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	res, err := s.deps.Ingester.Ingest(r.Context(), header.Filename, file)
	if err != nil {
		if ingest.IsClientError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("upload failed",
			zap.String("upload_id", res.UploadID),
			zap.String("filename", header.Filename),
			zap.String("kind", ingest.Label(err)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:  "file processed successfully",
		UploadID: res.UploadID,
		Format:   res.Format,
		Records:  res.Records,
	})
}

func (s *Server) handleByCurrency(w http.ResponseWriter, r *http.Request) {
	txs, err := s.deps.Querier.ByCurrency(r.Context(), mux.Vars(r)["currency"])
	s.writeQueryResult(w, txs, err)
}

func (s *Server) handleByStatus(w http.ResponseWriter, r *http.Request) {
	code, err := status.Parse(mux.Vars(r)["status"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("status must be one of %v", status.Codes()))
		return
	}

	txs, err := s.deps.Querier.ByStatus(r.Context(), code)
	s.writeQueryResult(w, txs, err)
}

func (s *Server) handleByDateRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, end, err := ParseRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := s.deps.Querier.ByDateRange(r.Context(), start, end)
	s.writeQueryResult(w, txs, err)
}

func (s *Server) writeQueryResult(w http.ResponseWriter, txs []record.Transaction, err error) {
	switch {
	case err == nil:
	case errors.Is(err, query.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "startDate must not be after endDate")
		return
	case store.IsUnavailable(err):
		s.logger.Warn("query rejected, store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		return
	default:
		s.logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgQueryFailed)
		return
	}

	if len(txs) == 0 {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Views(txs))
}

// queryTimeLayouts are tried in order. Values without an offset are UTC.
var queryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseRange parses inclusive range bounds. A date-only end covers the
// whole day.
func ParseRange(startText, endText string) (start, end time.Time, err error) {
	start, _, err = parseQueryTime(startText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("startDate: %w", err)
	}
	end, dateOnly, err := parseQueryTime(endText)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate: %w", err)
	}
	if dateOnly {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}

func parseQueryTime(v string) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, errors.New("is required")
	}
	for _, layout := range queryTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, layout == time.DateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("cannot parse %q; use RFC 3339 or YYYY-MM-DD", v)
}
