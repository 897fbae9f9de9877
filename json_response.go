package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/pixiechain/mediagate/pkg/orchestrator"
)

type failureResponse struct {
	Status bool   `json:"status"`
	Err    string `json:"err"`
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("Error sending JSON response")
	}
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// fail reports err as {status:false, err}. Ledger-level failures travel
// with HTTP 200 unless strict status codes are configured.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	phase, _ := orchestrator.PhaseOf(err)
	s.logger(r).WithError(err).WithField("phase", string(phase)).Warn("Handler: request failed")
	code := http.StatusOK
	if s.cfg.StrictStatusCodes {
		code = statusCodeFor(err)
	}
	writeJSON(w, code, failureResponse{Status: false, Err: err.Error()})
}

func statusCodeFor(err error) int {
	if errors.Is(err, errJournalDisabled) {
		return http.StatusNotFound
	}
	phase, ok := orchestrator.PhaseOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch phase {
	case orchestrator.PhaseValidate:
		return http.StatusBadRequest
	case orchestrator.PhaseLookup:
		return http.StatusNotFound
	case orchestrator.PhaseEstimate:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// invalid marks err as a request validation failure.
func invalid(err error) error {
	return &orchestrator.OpError{Phase: orchestrator.PhaseValidate, Err: err}
}
