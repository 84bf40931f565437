package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"oil-forecaster/api/rest/respond"
	"oil-forecaster/storage"
)

// DatasetHandler serves the configured default dataset
type DatasetHandler struct {
	source storage.DatasetSource
}

// NewDatasetHandler creates a new dataset handler; source may be nil
func NewDatasetHandler(source storage.DatasetSource) *DatasetHandler {
	return &DatasetHandler{source: source}
}

// GetDefaultDataset handles GET /api/default-dataset
func (h *DatasetHandler) GetDefaultDataset(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "Default dataset not found")
		return
	}
	ok, err := h.source.Exists(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !ok {
		respond.Error(w, http.StatusNotFound, "NOT_FOUND", "Default dataset not found")
		return
	}

	data, err := h.source.Read(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.source.Name()}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
