// Package main provides a test server for exercising the bot without Telegram.
// It runs the real router, dispatcher and status API over an in-memory SQLite database and a
// temporary reminders document. Outgoing messages are printed to the console instead of sent.
//
// Usage:
//
//	go run ./cmd/testserver
//
// The server exposes additional test control endpoints:
//   - POST /api/test/inject - Feed a message or button press to the bot
//   - POST /api/test/tick   - Run one due-check now
//   - POST /api/test/reset  - Delete all reminders, users and deliveries
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/bot"
	"github.com/omriShneor/babycare_bot/internal/config"
	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/logging"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/notify"
	"github.com/omriShneor/babycare_bot/internal/scheduler"
	"github.com/omriShneor/babycare_bot/internal/server"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/store"
)

// consoleMessage is one message the bot would have sent
type consoleMessage struct {
	ChatID    int64             `json:"chat_id"`
	MessageID int               `json:"message_id"`
	Edited    bool              `json:"edited"`
	Text      string            `json:"text"`
	Buttons   [][]source.Button `json:"buttons,omitempty"`
}

// consoleMessenger prints outgoing messages and keeps them for the inject response
type consoleMessenger struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	sent   []consoleMessage
}

func (m *consoleMessenger) Send(ctx context.Context, chatID int64, msg source.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.record(consoleMessage{ChatID: chatID, MessageID: m.nextID, Text: msg.Text, Buttons: msg.Buttons})
	return nil
}

func (m *consoleMessenger) Edit(ctx context.Context, chatID int64, messageID int, msg source.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(consoleMessage{ChatID: chatID, MessageID: messageID, Edited: true, Text: msg.Text, Buttons: msg.Buttons})
	return nil
}

func (m *consoleMessenger) record(msg consoleMessage) {
	m.sent = append(m.sent, msg)
	m.logger.Info("outgoing message",
		zap.Int64("chat_id", msg.ChatID),
		zap.Int("message_id", msg.MessageID),
		zap.Bool("edited", msg.Edited),
		zap.String("text", msg.Text))
}

// since returns the messages recorded after the first n
func (m *consoleMessenger) since(n int) []consoleMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]consoleMessage{}, m.sent[n:]...)
}

func (m *consoleMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func main() {
	cfg := config.LoadFromEnv()

	logger, err := logging.New(cfg.LogLevel, true, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting babycare test server")

	// Create in-memory database
	db, err := database.New(":memory:", logger)
	if err != nil {
		logger.Fatal("failed to create database", zap.Error(err))
	}
	defer db.Close()

	dataDir, err := os.MkdirTemp("", "babycare-testserver-*")
	if err != nil {
		logger.Fatal("failed to create data dir", zap.Error(err))
	}
	defer os.RemoveAll(dataDir)

	persister, err := store.NewFilePersister(filepath.Join(dataDir, "reminders.json"))
	if err != nil {
		logger.Fatal("failed to create persister", zap.Error(err))
	}
	reminders := store.New(persister, logger)
	if err := reminders.Load(context.Background()); err != nil {
		logger.Fatal("failed to load reminders", zap.Error(err))
	}

	catalog, err := i18n.Load(cfg.DefaultLanguage)
	if err != nil {
		logger.Fatal("failed to load translations", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	messenger := &consoleMessenger{logger: logger.Named("console")}

	dispatcher := notify.NewDispatcher(notify.Config{
		Reminders:  reminders,
		Messenger:  messenger,
		Catalog:    catalog,
		Users:      db,
		Deliveries: db,
		Metrics:    m,
		Logger:     logger,
	})

	sched := scheduler.New(logger)
	tick := func() {
		_, _ = dispatcher.Tick(context.Background())
	}
	if _, err := sched.Every(cfg.TickInterval, tick); err != nil {
		logger.Fatal("failed to schedule due-check", zap.Error(err))
	}

	router := bot.NewRouter(bot.Config{
		Reminders:       reminders,
		Users:           db,
		Messenger:       messenger,
		Catalog:         catalog,
		Metrics:         m,
		Logger:          logger,
		DefaultTimezone: cfg.DefaultTimezone,
		Wakeup: func(at time.Time) {
			sched.At(at, tick)
		},
	})

	srv := server.New(server.ServerConfig{
		Reminders: reminders,
		DB:        db,
		Gatherer:  reg,
		Port:      cfg.HTTPPort,
		Logger:    logger,
	})

	srv.HandleFunc("POST /api/test/inject", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID     int64  `json:"chat_id"`
			SenderName string `json:"sender_name"`
			Text       string `json:"text"`
			Data       string `json:"data"`
			MessageID  int    `json:"message_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if req.ChatID == 0 || (req.Text == "") == (req.Data == "") {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "chat_id and exactly one of text or data are required"})
			return
		}
		if req.SenderName == "" {
			req.SenderName = "Test User"
		}

		ev := source.NewMessageEvent(req.ChatID, req.SenderName, req.Text, time.Now())
		if req.Data != "" {
			ev = source.NewCallbackEvent(req.ChatID, req.SenderName, req.Data, req.MessageID, time.Now())
		}

		before := messenger.count()
		if err := router.Handle(r.Context(), ev); err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"step":    router.Machine().State(req.ChatID).Step.String(),
			"replies": messenger.since(before),
		})
	})

	srv.HandleFunc("POST /api/test/tick", func(w http.ResponseWriter, r *http.Request) {
		before := messenger.count()
		result, err := dispatcher.Tick(r.Context())
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"due":           result.Due,
			"sent":          result.Sent,
			"failed":        result.Failed,
			"notifications": messenger.since(before),
		})
	})

	srv.HandleFunc("POST /api/test/reset", func(w http.ResponseWriter, r *http.Request) {
		logger.Info("resetting test data")
		snapshot := reminders.Snapshot()
		for _, owner := range snapshot.Owners() {
			router.Machine().Cancel(owner)
			for _, rem := range snapshot.List(owner) {
				if _, err := reminders.Remove(r.Context(), owner, rem.ID); err != nil {
					respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
					return
				}
			}
		}
		if _, err := db.Exec(`DELETE FROM deliveries; DELETE FROM users;`); err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
	})

	go func() {
		fmt.Printf("\nTest Server running on http://localhost:%d\n", cfg.HTTPPort)
		fmt.Println("\nTest endpoints:")
		fmt.Println("  POST /api/test/inject - Inject a message {chat_id, text} or button press {chat_id, data, message_id}")
		fmt.Println("  POST /api/test/tick   - Run one due-check")
		fmt.Println("  POST /api/test/reset  - Reset all data")
		fmt.Println("\nPress Ctrl+C to stop")

		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()
	sched.Start()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down test server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
