package api

import (
	"encoding/json"
	"net/http"

	"github.com/jiwoo/sms-sequencer/internal/dispatch"
	"github.com/jiwoo/sms-sequencer/internal/logger"
)

// dlqReprocessRequest is the JSON body for POST /api/v1/dispatch/dlq/reprocess.
type dlqReprocessRequest struct {
	EventIDs []string `json:"event_ids"`
}

// dlqReprocessResponse is the JSON response for a DLQ reprocess operation.
type dlqReprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
	Total       int `json:"total"`
}

// DLQReprocessHandler handles POST /api/v1/dispatch/dlq/reprocess. It
// reschedules dead-lettered dispatcher events onto the primary stream with a
// fresh redelivery budget.
func DLQReprocessHandler(dlq dispatch.DeadLetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req dlqReprocessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.EventIDs) == 0 {
			respondError(w, http.StatusBadRequest, "event_ids is required and must not be empty")
			return
		}

		reprocessed, err := dlq.Reprocess(r.Context(), req.EventIDs)
		if err != nil {
			log.Error().Err(err).
				Int("requested", len(req.EventIDs)).
				Int("reprocessed", reprocessed).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		log.Info().
			Int("reprocessed", reprocessed).
			Int("total", len(req.EventIDs)).
			Msg("dlq reprocess completed")

		respondJSON(w, http.StatusOK, dlqReprocessResponse{
			Reprocessed: reprocessed,
			Total:       len(req.EventIDs),
		})
	}
}
