package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/omriShneor/babycare_bot/internal/source"
)

// ErrUnknownPeer is returned when sending to a chat whose access hash was never seen
var ErrUnknownPeer = errors.New("telegram: unknown chat")

// EventHandler processes one inbound event
type EventHandler interface {
	Handle(ctx context.Context, ev source.Event) error
}

// Users persists the access hashes needed to message a chat after a restart
type Users interface {
	UpsertUser(chatID, accessHash int64, displayName string) error
	GetAccessHash(chatID int64) (int64, error)
}

// Client manages the Telegram bot connection
type Client struct {
	apiID       int
	apiHash     string
	botToken    string
	sessionPath string
	client      *telegram.Client
	api         *tg.Client
	handler     EventHandler
	users       Users
	logger      *zap.Logger
	connected   bool
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	events      chan source.Event
	done        chan struct{}

	hashMu sync.Mutex
	hashes map[int64]int64
}

// ClientConfig holds configuration for the Telegram client
type ClientConfig struct {
	APIID       int
	APIHash     string
	BotToken    string
	SessionPath string
	Handler     EventHandler
	Users       Users
	Logger      *zap.Logger
	// QueueSize bounds the inbound event queue. Defaults to 100.
	QueueSize int
}

// NewClient creates a new Telegram client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("Telegram API ID and API Hash are required")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("Telegram bot token is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		apiID:       cfg.APIID,
		apiHash:     cfg.APIHash,
		botToken:    cfg.BotToken,
		sessionPath: cfg.SessionPath,
		handler:     cfg.Handler,
		users:       cfg.Users,
		logger:      logger.Named("telegram"),
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan source.Event, queueSize),
		done:        make(chan struct{}),
		hashes:      make(map[int64]int64),
	}

	return c, nil
}

// Connect starts the client, logs in with the bot token if the session is not authorized yet,
// and waits until updates are flowing
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return nil
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(c.onNewMessage)
	dispatcher.OnBotCallbackQuery(c.onCallbackQuery)

	gaps := updates.New(updates.Config{
		Handler: &dispatcher,
		Logger:  c.logger.Named("updates"),
	})

	client := telegram.NewClient(c.apiID, c.apiHash, telegram.Options{
		SessionStorage: &FileSessionStorage{Path: c.sessionPath},
		UpdateHandler:  gaps,
		Logger:         c.logger.Named("mtproto"),
	})
	c.client = client
	c.mu.Unlock()

	ready := make(chan error, 1)
	go func() {
		err := client.Run(c.ctx, func(ctx context.Context) error {
			status, err := client.Auth().Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get auth status: %w", err)
			}
			if !status.Authorized {
				if _, err := client.Auth().Bot(ctx, c.botToken); err != nil {
					return fmt.Errorf("failed to log in as bot: %w", err)
				}
				c.logger.Info("logged in with bot token")
			}

			self, err := client.Self(ctx)
			if err != nil {
				return fmt.Errorf("failed to get bot user: %w", err)
			}

			c.mu.Lock()
			c.api = client.API()
			c.connected = true
			c.mu.Unlock()

			c.logger.Info("connected", zap.String("username", self.Username))

			return gaps.Run(ctx, client.API(), self.ID, updates.AuthOptions{
				IsBot: true,
				OnStart: func(ctx context.Context) {
					select {
					case ready <- nil:
					default:
					}
				},
			})
		})

		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("client stopped", zap.Error(err))
			select {
			case ready <- err:
			default:
			}
		}
	}()

	select {
	case err := <-ready:
		return err
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for Telegram client to connect")
	}
}

// SetHandler sets the event handler. Call before StartUpdateLoop.
func (c *Client) SetHandler(h EventHandler) {
	c.handler = h
}

// Disconnect closes the Telegram connection and stops the update loop
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.connected = false
}

// IsConnected returns whether the client is connected and authenticated
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// StartUpdateLoop processes queued events one at a time until Disconnect. A single consumer
// keeps every chat's events in arrival order.
func (c *Client) StartUpdateLoop() {
	go func() {
		defer close(c.done)
		for {
			select {
			case <-c.ctx.Done():
				return
			case ev := <-c.events:
				if c.handler == nil {
					continue
				}
				if err := c.handler.Handle(c.ctx, ev); err != nil {
					c.logger.Warn("failed to handle event",
						zap.Int64("chat_id", ev.ChatID),
						zap.String("kind", string(ev.Kind)),
						zap.Error(err))
				}
			}
		}
	}()
}

// Wait blocks until the update loop has exited
func (c *Client) Wait() {
	<-c.done
}

// enqueue hands an event to the update loop, dropping it when the queue is full
func (c *Client) enqueue(ev source.Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event queue full, dropping event", zap.Int64("chat_id", ev.ChatID))
	}
}

// Send implements source.Messenger
func (c *Client) Send(ctx context.Context, chatID int64, msg source.Outbound) error {
	api, err := c.getAPI()
	if err != nil {
		return err
	}
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return err
	}

	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:        peer,
		Message:     msg.Text,
		RandomID:    rand.Int64(),
		ReplyMarkup: inlineMarkup(msg.Buttons),
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Edit implements source.Messenger
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, msg source.Outbound) error {
	api, err := c.getAPI()
	if err != nil {
		return err
	}
	peer, err := c.inputPeer(chatID)
	if err != nil {
		return err
	}

	_, err = api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		Peer:        peer,
		ID:          messageID,
		Message:     msg.Text,
		ReplyMarkup: inlineMarkup(msg.Buttons),
	})
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (c *Client) getAPI() (*tg.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.api == nil {
		return nil, fmt.Errorf("client not connected")
	}
	return c.api, nil
}
