package api

import (
	"encoding/json"
	"net/http"

	"github.com/jiwoo/sms-sequencer/internal/logger"
)

// Twilio status callbacks arrive as form posts. Only terminal statuses change
// queue state; interim ones (queued, sending, sent) are acknowledged and
// dropped. Unknown message SIDs and duplicate callbacks are 200 no-ops so
// Twilio stops retrying.
func TwilioWebhookHandler(manager QueueManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		if err := r.ParseForm(); err != nil {
			log.Warn().Err(err).Msg("twilio webhook: invalid form payload")
			respondError(w, http.StatusBadRequest, "invalid form body")
			return
		}

		messageSid := r.PostFormValue("MessageSid")
		messageStatus := r.PostFormValue("MessageStatus")
		if messageSid == "" || messageStatus == "" {
			respondError(w, http.StatusBadRequest, "MessageSid and MessageStatus are required")
			return
		}

		var (
			resolved bool
			err      error
		)
		switch messageStatus {
		case "delivered":
			resolved, err = manager.MarkDelivered(r.Context(), messageSid)
		case "failed", "undelivered":
			reason := r.PostFormValue("ErrorMessage")
			if reason == "" {
				reason = "twilio reported " + messageStatus
			}
			if code := r.PostFormValue("ErrorCode"); code != "" {
				reason += " (error " + code + ")"
			}
			resolved, err = manager.MarkFailed(r.Context(), messageSid, reason)
		default:
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		if err != nil {
			log.Error().Err(err).
				Str("message_sid", messageSid).
				Str("message_status", messageStatus).
				Msg("twilio webhook: receipt handling failed")
			respondError(w, http.StatusInternalServerError, "receipt handling failed")
			return
		}
		if !resolved {
			log.Debug().
				Str("message_sid", messageSid).
				Str("message_status", messageStatus).
				Msg("twilio webhook: receipt did not match an in-flight entry")
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// vonageReceipt is the JSON delivery receipt Vonage posts per message.
type vonageReceipt struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	ErrCode   string `json:"err-code"`
	To        string `json:"msisdn"`
}

// vonageFailureStatus maps Vonage DLR statuses that end a delivery attempt.
var vonageFailureStatus = map[string]bool{
	"failed":   true,
	"rejected": true,
	"expired":  true,
}

// VonageWebhookHandler handles POST /api/v1/webhooks/vonage.
func VonageWebhookHandler(manager QueueManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var receipt vonageReceipt
		if err := json.NewDecoder(r.Body).Decode(&receipt); err != nil {
			log.Warn().Err(err).Msg("vonage webhook: invalid payload")
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if receipt.MessageID == "" {
			respondError(w, http.StatusBadRequest, "messageId is required")
			return
		}

		var (
			resolved bool
			err      error
		)
		switch {
		case receipt.Status == "delivered":
			resolved, err = manager.MarkDelivered(r.Context(), receipt.MessageID)
		case vonageFailureStatus[receipt.Status]:
			reason := "vonage reported " + receipt.Status
			if receipt.ErrCode != "" && receipt.ErrCode != "0" {
				reason += " (err-code " + receipt.ErrCode + ")"
			}
			resolved, err = manager.MarkFailed(r.Context(), receipt.MessageID, reason)
		default:
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		if err != nil {
			log.Error().Err(err).
				Str("message_id", receipt.MessageID).
				Str("dlr_status", receipt.Status).
				Msg("vonage webhook: receipt handling failed")
			respondError(w, http.StatusInternalServerError, "receipt handling failed")
			return
		}
		if !resolved {
			log.Debug().
				Str("message_id", receipt.MessageID).
				Str("dlr_status", receipt.Status).
				Msg("vonage webhook: receipt did not match an in-flight entry")
		}

		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
