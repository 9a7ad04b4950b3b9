package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/reminder"
)

// reminderView is the API shape of a stored reminder
type reminderView struct {
	ChatID        int64         `json:"chat_id"`
	ID            int           `json:"id"`
	Name          string        `json:"name"`
	Kind          reminder.Kind `json:"kind"`
	Unit          reminder.Unit `json:"unit"`
	Amount        int           `json:"amount"`
	LastTriggerAt time.Time     `json:"last_trigger_at,omitzero"`
	LastDoneAt    time.Time     `json:"last_done_at,omitzero"`
	NextTriggerAt time.Time     `json:"next_trigger_at"`
	Language      string        `json:"language,omitempty"`
}

func newReminderView(owner int64, r reminder.Reminder) reminderView {
	return reminderView{
		ChatID:        owner,
		ID:            r.ID,
		Name:          r.Name,
		Kind:          r.Kind,
		Unit:          r.Unit,
		Amount:        r.Amount,
		LastTriggerAt: r.LastTriggerAt,
		LastDoneAt:    r.LastDoneAt,
		NextTriggerAt: reminder.NextTriggerAt(r),
		Language:      r.Language,
	}
}

// Health Check

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}

	status := map[string]any{
		"status":   "healthy",
		"telegram": "disconnected",
	}
	if s.transport != nil && s.transport.IsConnected() {
		status["telegram"] = "connected"
	}
	if s.reminders != nil {
		status["reminders"] = s.reminders.Len()
	}
	if s.db != nil {
		users, err := s.db.GetAllUsers()
		if err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		status["users"] = len(users)
	}

	respondJSON(w, http.StatusOK, status)
}

// Reminders API

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request) {
	if s.reminders == nil {
		respondError(w, http.StatusServiceUnavailable, "reminders not loaded")
		return
	}

	views := []reminderView{}
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid chat_id")
			return
		}
		for _, rem := range s.reminders.List(chatID) {
			views = append(views, newReminderView(chatID, rem))
		}
		respondJSON(w, http.StatusOK, views)
		return
	}

	table := s.reminders.Snapshot()
	for _, owner := range table.Owners() {
		for _, rem := range table.List(owner) {
			views = append(views, newReminderView(owner, rem))
		}
	}
	respondJSON(w, http.StatusOK, views)
}

// handleDueReminders previews what the next tick would fire, without firing anything
func (s *Server) handleDueReminders(w http.ResponseWriter, r *http.Request) {
	if s.reminders == nil {
		respondError(w, http.StatusServiceUnavailable, "reminders not loaded")
		return
	}

	views := []reminderView{}
	for owner, rem := range s.reminders.Snapshot().Due(s.now()) {
		views = append(views, newReminderView(owner, rem))
	}
	respondJSON(w, http.StatusOK, views)
}

// Delivery log

func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	if s.deliveries == nil {
		respondError(w, http.StatusServiceUnavailable, "delivery log unavailable")
		return
	}

	var chatID int64
	if raw := r.URL.Query().Get("chat_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid chat_id")
			return
		}
		chatID = id
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	deliveries, err := s.deliveries.ListDeliveries(chatID, limit)
	if err != nil {
		s.logger.Error("failed to list deliveries", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, deliveries)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
