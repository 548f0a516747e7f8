// Package steamapi — минимальный клиент Steam Web API: проверка, что
// SteamID64 принадлежит существующему аккаунту, и имя профиля для сводки.
package steamapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://api.steampowered.com"

// ErrNoAccount — Steam не вернул профиль для этого SteamID64.
var ErrNoAccount = errors.New("steam account not found")

type Client struct {
	http    *http.Client
	key     string
	baseURL string
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]Player // steamid -> найденный профиль
}

type Player struct {
	SteamID     string `json:"steamid"`
	PersonaName string `json:"personaname"`
	ProfileURL  string `json:"profileurl"`
}

type summariesResponse struct {
	Response struct {
		Players []Player `json:"players"`
	} `json:"response"`
}

type Option func(*Client)

// WithBaseURL подменяет адрес API (для тестов).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient создаёт клиент. Пустой key — клиент выключен: Enabled() == false.
func NewClient(key string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		key:     strings.TrimSpace(key),
		baseURL: defaultBaseURL,
		logger:  slog.New(slog.DiscardHandler),
		cache:   map[string]Player{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.key != ""
}
