package httpx

import (
	"errors"
	"net/http"

	"github.com/repolens/repolens/internal/data"
	"github.com/repolens/repolens/internal/service"
)

// ReportHandlers provides HTTP handlers for report-related operations.
type ReportHandlers struct {
	Svc *service.ReportService
}

// GetReport handles HTTP requests to retrieve a completed analysis report.
func (h *ReportHandlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("report id is required")})
		return
	}

	report, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeReportError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// PublishReport handles HTTP requests to publish a report to
// content-addressed storage. Publishing an already-published report returns
// its existing hash.
func (h *ReportHandlers) PublishReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_path", Err: errors.New("report id is required")})
		return
	}

	hash, err := h.Svc.Publish(r.Context(), id)
	if err != nil {
		writeReportError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"hash": hash})
}

func writeReportError(w http.ResponseWriter, err error) {
	if errors.Is(err, data.ErrReportNotFound) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "report_not_found", Err: errors.New("report not found")})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "report_operation_failed", Err: err})
}
