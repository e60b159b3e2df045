package web

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/datachat-ai/datachat/internal/dataset"
)

// maxDatasetBytes bounds the upload body. Datasets are in-memory for the
// life of the session, so the cap keeps one session from evicting the
// rest.
const maxDatasetBytes = 32 << 20

// handlePutDataset binds a dataset to the session, replacing any
// previous one. The body is columnar JSON: column descriptors plus rows.
func (s *Server) handlePutDataset(w http.ResponseWriter, r *http.Request) {
	var ds dataset.Dataset
	r.Body = http.MaxBytesReader(w, r.Body, maxDatasetBytes)
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid dataset body: "+err.Error())
		return
	}
	if err := ds.Validate(); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	session := requestSession(r)
	summary := s.registry.Put(session.ID, &ds)
	s.logger.Info("dataset bound",
		"session", session.ID,
		"rows", summary.RowCount,
		"columns", summary.ColumnCount,
	)
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary}, s.logger)
}

// handleExportDataset streams the session's current dataset as CSV,
// reflecting any in-place cleaning operations applied so far.
func (s *Server) handleExportDataset(w http.ResponseWriter, r *http.Request) {
	session := requestSession(r)
	ds, _, err := s.registry.Get(session.ID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "no dataset bound to this session")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", session.ID+".csv"))

	cw := csv.NewWriter(w)
	header := make([]string, len(ds.Columns))
	for i, col := range ds.Columns {
		header[i] = col.Name
	}
	if err := cw.Write(header); err != nil {
		s.logger.Debug("csv export aborted", "error", err)
		return
	}
	record := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, v := range row {
			record[i] = cellString(v)
		}
		if err := cw.Write(record); err != nil {
			s.logger.Debug("csv export aborted", "error", err)
			return
		}
	}
	cw.Flush()
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(t)
	}
}

// formatNumber keeps integral floats free of a trailing ".000000".
func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
