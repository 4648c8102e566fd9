package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jiwoo/sms-sequencer/internal/logger"
	"github.com/jiwoo/sms-sequencer/internal/queue"
)

// QueueManager is the slice of the queue manager the HTTP handlers need.
type QueueManager interface {
	Enqueue(ctx context.Context, recipientID, queueName string, items []queue.Content) ([]*queue.Entry, error)
	QueueStatus(ctx context.Context, recipientID, queueName string) (queue.StatusCounts, error)
	ClearQueue(ctx context.Context, recipientID, queueName string) (int64, error)
	MarkDelivered(ctx context.Context, providerMessageID string) (bool, error)
	MarkFailed(ctx context.Context, providerMessageID, reason string) (bool, error)
}

// enqueueRequest is the JSON body for POST /api/v1/queues/{recipientID}/{queueName}/messages.
type enqueueRequest struct {
	Messages []queue.Content `json:"messages"`
}

// enqueueResponseEntry is one accepted entry in the enqueue response.
type enqueueResponseEntry struct {
	ID             string    `json:"id"`
	SequenceNumber int       `json:"sequence_number"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// enqueueResponse is the JSON response for a successful enqueue.
type enqueueResponse struct {
	RecipientID string                 `json:"recipient_id"`
	QueueName   string                 `json:"queue_name"`
	Entries     []enqueueResponseEntry `json:"entries"`
}

// EnqueueHandler handles POST /api/v1/queues/{recipientID}/{queueName}/messages.
// It appends a batch of messages to the queue in request order.
func EnqueueHandler(manager QueueManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		recipientID := chi.URLParam(r, "recipientID")
		queueName := chi.URLParam(r, "queueName")

		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Messages) == 0 {
			respondError(w, http.StatusBadRequest, "messages is required and must not be empty")
			return
		}

		var invalid []string
		for i, msg := range req.Messages {
			if err := msg.Validate(); err != nil {
				invalid = append(invalid, fmt.Sprintf("message %d: %v", i, err))
			}
		}
		if len(invalid) > 0 {
			respondValidationErrors(w, invalid)
			return
		}

		entries, err := manager.Enqueue(r.Context(), recipientID, queueName, req.Messages)
		if err != nil {
			if errors.Is(err, queue.ErrEmptyContent) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).
				Str("recipient_id", recipientID).
				Str("queue", queueName).
				Msg("enqueue failed")
			respondError(w, http.StatusInternalServerError, "enqueue failed")
			return
		}

		resp := enqueueResponse{
			RecipientID: recipientID,
			QueueName:   queueName,
			Entries:     make([]enqueueResponseEntry, 0, len(entries)),
		}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, enqueueResponseEntry{
				ID:             e.ID.String(),
				SequenceNumber: e.SequenceNumber,
				Status:         string(e.Status),
				CreatedAt:      e.CreatedAt,
			})
		}

		respondJSON(w, http.StatusCreated, resp)
	}
}

// queueStatusResponse is the JSON response for a queue status lookup.
type queueStatusResponse struct {
	RecipientID string             `json:"recipient_id"`
	QueueName   string             `json:"queue_name"`
	Counts      queue.StatusCounts `json:"counts"`
	Total       int                `json:"total"`
	Drained     bool               `json:"drained"`
}

// QueueStatusHandler handles GET /api/v1/queues/{recipientID}/{queueName}.
func QueueStatusHandler(manager QueueManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		recipientID := chi.URLParam(r, "recipientID")
		queueName := chi.URLParam(r, "queueName")

		counts, err := manager.QueueStatus(r.Context(), recipientID, queueName)
		if err != nil {
			log.Error().Err(err).
				Str("recipient_id", recipientID).
				Str("queue", queueName).
				Msg("queue status lookup failed")
			respondError(w, http.StatusInternalServerError, "status lookup failed")
			return
		}

		respondJSON(w, http.StatusOK, queueStatusResponse{
			RecipientID: recipientID,
			QueueName:   queueName,
			Counts:      counts,
			Total:       counts.Total(),
			Drained:     counts.Drained(),
		})
	}
}

// clearQueueResponse is the JSON response for a queue clear operation.
type clearQueueResponse struct {
	Removed int64 `json:"removed"`
}

// ClearQueueHandler handles DELETE /api/v1/queues/{recipientID}/{queueName}.
// It removes the queue's terminal entries; pending and in-flight entries are
// untouched.
func ClearQueueHandler(manager QueueManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		recipientID := chi.URLParam(r, "recipientID")
		queueName := chi.URLParam(r, "queueName")

		removed, err := manager.ClearQueue(r.Context(), recipientID, queueName)
		if err != nil {
			log.Error().Err(err).
				Str("recipient_id", recipientID).
				Str("queue", queueName).
				Msg("queue clear failed")
			respondError(w, http.StatusInternalServerError, "clear failed")
			return
		}

		respondJSON(w, http.StatusOK, clearQueueResponse{Removed: removed})
	}
}
