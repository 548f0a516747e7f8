package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// ErrFatalClose — сервер закрыл соединение кодом, после которого
// переподключаться бессмысленно (неверный токен, запрещённые intents).
var ErrFatalClose = errors.New("discord gateway: fatal close")

type SessionConfig struct {
	Token   string
	Intents int
	// URL gateway; пусто — DefaultGatewayURL.
	URL    string
	Logger *slog.Logger
}

// Session — соединение с gateway. События приходят в колбэки, каждый
// вызов в своей горутине.
type Session struct {
	token   string
	intents int
	url     string
	logger  *slog.Logger
	dialer  *websocket.Dialer

	conn *websocket.Conn
	cmu  sync.Mutex // защищает conn
	wmu  sync.Mutex // сериализует запись в websocket

	seq       atomic.Int64 // 0 — событий ещё не было
	sessionID string
	resumeURL string
	acked     atomic.Bool

	backoffMin, backoffMax time.Duration

	// "События"
	OnReady        func(Ready)
	OnMemberAdd    func(MemberEvent)
	OnMemberUpdate func(MemberEvent)
	OnMemberRemove func(MemberRemove)
	OnMessage      func(MessageCreate)
	OnInteraction  func(Interaction)
	OnRolesChanged func()
	OnConnected    func()
	OnDisconnected func()
	OnError        func(error)
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.URL == "" {
		cfg.URL = DefaultGatewayURL
	}
	if cfg.Intents == 0 {
		cfg.Intents = DefaultIntents
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Session{
		token:      cfg.Token,
		intents:    cfg.Intents,
		url:        cfg.URL,
		logger:     cfg.Logger,
		dialer:     &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
	}
}

// Run держит соединение до отмены ctx: подключается, при обрыве
// возобновляет сессию или переподключается с backoff 1s..30s.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.backoffMin
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrFatalClose) {
			return err
		}
		if err != nil {
			s.emitError(err)
		}
		if s.OnDisconnected != nil {
			s.OnDisconnected()
		}
		// долгая живая сессия — начинаем backoff заново
		if time.Since(started) > s.backoffMax {
			backoff = s.backoffMin
		}
		s.logger.Warn("gateway disconnected, reconnecting", "wait", backoff, "resumable", s.sessionID != "", "err", err)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.backoffMax)
	}
}

// runOnce — одно соединение от dial до обрыва.
func (s *Session) runOnce(ctx context.Context) error {
	conn, interval, err := s.dialAndHello(ctx)
	if err != nil {
		return err
	}
	defer s.closeConn()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-stop:
		}
	}()

	if s.sessionID != "" && s.seq.Load() > 0 {
		err = s.send(opResume, resume{Token: s.token, SessionID: s.sessionID, Seq: s.seq.Load()})
	} else {
		err = s.send(opIdentify, identify{
			Token:      s.token,
			Intents:    s.intents,
			Properties: identifyProperties{OS: "linux", Browser: "recruitbot", Device: "recruitbot"},
		})
	}
	if err != nil {
		return fmt.Errorf("discord gateway: handshake: %w", err)
	}

	s.startHeartbeat(conn, interval, stop)
	return s.readLoop(ctx, conn)
}

// Close закрывает текущее соединение; Run при этом не завершается, пока
// жив его ctx.
func (s *Session) Close() {
	s.closeConn()
}

func (s *Session) emitError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
