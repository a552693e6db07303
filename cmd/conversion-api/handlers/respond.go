// Package handlers provides HTTP handlers for the conversion API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docuforge/conversion-engine/internal/domain"
	"github.com/docuforge/conversion-engine/internal/storage"
)

// errorDTO is the uniform error body.
type errorDTO struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDomainError maps storage and domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorDTO{Error: "not found"})
		return
	case errors.Is(err, storage.ErrConflict):
		writeJSON(w, http.StatusConflict, errorDTO{Error: "conflicting state", Detail: err.Error()})
		return
	}

	kind := domain.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.ErrorKindInvalidInput:
		status = http.StatusBadRequest
	case domain.ErrorKindUnreadableDocument, domain.ErrorKindUnsupportedFormatPair:
		status = http.StatusUnprocessableEntity
	case domain.ErrorKindModificationRegionMismatch:
		status = http.StatusConflict
	case domain.ErrorKindStorageQuotaExceeded:
		status = http.StatusRequestEntityTooLarge
	case domain.ErrorKindBackendTimeout:
		status = http.StatusGatewayTimeout
	case domain.ErrorKindBackendCrashed:
		status = http.StatusBadGateway
	}

	body := errorDTO{Error: err.Error(), Kind: string(kind)}
	if status == http.StatusInternalServerError {
		// Internal details stay in the logs.
		body = errorDTO{Error: "internal error", Kind: string(kind)}
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorDTO{Error: message, Kind: string(domain.ErrorKindInvalidInput)})
}
