package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/omriShneor/babycare_bot/internal/bot"
	"github.com/omriShneor/babycare_bot/internal/database"
	"github.com/omriShneor/babycare_bot/internal/i18n"
	"github.com/omriShneor/babycare_bot/internal/metrics"
	"github.com/omriShneor/babycare_bot/internal/notify"
	"github.com/omriShneor/babycare_bot/internal/server"
	"github.com/omriShneor/babycare_bot/internal/source"
	"github.com/omriShneor/babycare_bot/internal/store"
)

// DefaultStart is the clock's starting instant unless WithStartTime is given
var DefaultStart = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

// TestServer wires the whole bot for E2E testing: store, database, router, dispatcher and the
// status API, with a recording messenger in place of Telegram and a manual clock.
type TestServer struct {
	Server     *server.Server
	HTTPServer *httptest.Server
	Store      *store.Store
	DB         *database.DB
	Router     *bot.Router
	Dispatcher *notify.Dispatcher
	Messenger  *RecordingMessenger
	Clock      *Clock
	Catalog    *i18n.Catalog
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	DataPath   string
	t          *testing.T

	start           time.Time
	language        string
	defaultTimezone string
	logger          *zap.Logger
}

// TestServerOption configures a test server
type TestServerOption func(*TestServer)

// WithStartTime sets the clock's starting instant
func WithStartTime(start time.Time) TestServerOption {
	return func(ts *TestServer) {
		ts.start = start
	}
}

// WithDefaultLanguage sets the catalog's default language
func WithDefaultLanguage(lang string) TestServerOption {
	return func(ts *TestServer) {
		ts.language = lang
	}
}

// WithDefaultTimezone sets the zone used for chats without a timezone
func WithDefaultTimezone(tz string) TestServerOption {
	return func(ts *TestServer) {
		ts.defaultTimezone = tz
	}
}

// WithDataPath uses an existing reminders document instead of a fresh temp file
func WithDataPath(path string) TestServerOption {
	return func(ts *TestServer) {
		ts.DataPath = path
	}
}

// NewTestServer creates a fully configured test server for E2E testing
func NewTestServer(t *testing.T, opts ...TestServerOption) *TestServer {
	t.Helper()

	ts := &TestServer{
		t:               t,
		start:           DefaultStart,
		language:        "en",
		defaultTimezone: "UTC",
		DataPath:        filepath.Join(t.TempDir(), "reminders.json"),
		logger:          zaptest.NewLogger(t),
	}
	for _, opt := range opts {
		opt(ts)
	}

	ts.DB = database.NewTestDB(t)
	ts.Clock = NewClock(ts.start)
	ts.Messenger = NewRecordingMessenger()

	catalog, err := i18n.Load(ts.language)
	require.NoError(t, err, "failed to load catalog")
	ts.Catalog = catalog

	ts.Registry = prometheus.NewRegistry()
	ts.Metrics = metrics.MustNewMetrics(ts.Registry)

	ts.Store = ts.openStore()

	ts.Router = bot.NewRouter(bot.Config{
		Reminders:       ts.Store,
		Users:           ts.DB,
		Messenger:       ts.Messenger,
		Catalog:         ts.Catalog,
		Metrics:         ts.Metrics,
		Logger:          ts.logger,
		DefaultTimezone: ts.defaultTimezone,
		Now:             ts.Clock.Now,
	})

	ts.Dispatcher = notify.NewDispatcher(notify.Config{
		Reminders:  ts.Store,
		Messenger:  ts.Messenger,
		Catalog:    ts.Catalog,
		Users:      ts.DB,
		Deliveries: ts.DB,
		Metrics:    ts.Metrics,
		Logger:     ts.logger,
		Now:        ts.Clock.Now,
	})

	ts.Server = server.New(server.ServerConfig{
		Reminders: ts.Store,
		DB:        ts.DB,
		Gatherer:  ts.Registry,
		Logger:    ts.logger,
		Now:       ts.Clock.Now,
	})
	ts.HTTPServer = httptest.NewServer(ts.Server.Handler())

	t.Cleanup(func() {
		ts.HTTPServer.Close()
	})

	return ts
}

func (ts *TestServer) openStore() *store.Store {
	persister, err := store.NewFilePersister(ts.DataPath)
	require.NoError(ts.t, err)
	st := store.New(persister, ts.logger)
	require.NoError(ts.t, st.Load(context.Background()), "failed to load reminders")
	return st
}

// ReloadStore reads the persisted document into a fresh store, as a restarted process would
func (ts *TestServer) ReloadStore() *store.Store {
	ts.t.Helper()
	return ts.openStore()
}

// BaseURL returns the test server base URL
func (ts *TestServer) BaseURL() string {
	return ts.HTTPServer.URL
}

// Client returns an HTTP client configured for the test server
func (ts *TestServer) Client() *http.Client {
	return ts.HTTPServer.Client()
}

// Say delivers a text message (or command) from chatID at the current clock time
func (ts *TestServer) Say(chatID int64, text string) {
	ts.t.Helper()
	ev := source.NewMessageEvent(chatID, "Test User", text, ts.Clock.Now())
	require.NoError(ts.t, ts.Router.Handle(context.Background(), ev))
}

// Press delivers a button press from chatID. messageID 0 means the reply is sent, not edited.
func (ts *TestServer) Press(chatID int64, data string, messageID int) {
	ts.t.Helper()
	ev := source.NewCallbackEvent(chatID, "Test User", data, messageID, ts.Clock.Now())
	require.NoError(ts.t, ts.Router.Handle(context.Background(), ev))
}

// Tick runs one due-check at the current clock time
func (ts *TestServer) Tick() notify.TickResult {
	ts.t.Helper()
	result, err := ts.Dispatcher.Tick(context.Background())
	require.NoError(ts.t, err)
	return result
}

// AdvanceAndTick moves the clock forward and runs a due-check
func (ts *TestServer) AdvanceAndTick(d time.Duration) notify.TickResult {
	ts.t.Helper()
	ts.Clock.Advance(d)
	return ts.Tick()
}

// T translates key in the server's default language
func (ts *TestServer) T(key string, args ...any) string {
	return ts.Catalog.T(ts.language, key, args...)
}
