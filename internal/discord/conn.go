package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gorilla/websocket"
)

var errZombie = errors.New("discord gateway: heartbeat not acknowledged")

// dialAndHello подключается и ждёт Hello с интервалом heartbeat.
func (s *Session) dialAndHello(ctx context.Context) (*websocket.Conn, time.Duration, error) {
	url := s.url
	if s.resumeURL != "" && s.sessionID != "" {
		url = s.resumeURL + "/?v=10&encoding=json"
	}
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("discord gateway: dial: %w", err)
	}
	conn.SetReadLimit(16 << 20)

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var p payload
	if err := conn.ReadJSON(&p); err != nil {
		_ = conn.Close()
		return nil, 0, fmt.Errorf("discord gateway: read hello: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	if p.Op != opHello {
		_ = conn.Close()
		return nil, 0, fmt.Errorf("discord gateway: expected hello, got op %d", p.Op)
	}
	var h hello
	if err := json.Unmarshal(p.D, &h); err != nil || h.HeartbeatInterval <= 0 {
		_ = conn.Close()
		return nil, 0, fmt.Errorf("discord gateway: bad hello: %v", err)
	}

	s.cmu.Lock()
	s.conn = conn
	s.cmu.Unlock()
	s.acked.Store(true)
	return conn, time.Duration(h.HeartbeatInterval) * time.Millisecond, nil
}

// send пишет payload; запись строго через один мьютекс + write-deadline.
func (s *Session) send(op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	s.cmu.Lock()
	conn := s.conn
	s.cmu.Unlock()
	if conn == nil {
		return errors.New("discord gateway: not connected")
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(payload{Op: op, D: raw})
}

func (s *Session) heartbeat() error {
	var seq *int64
	if n := s.seq.Load(); n > 0 {
		seq = &n
	}
	return s.send(opHeartbeat, seq)
}

// startHeartbeat шлёт heartbeat каждые interval (первый — со случайной
// задержкой). Нет ACK на предыдущий — соединение закрывается, readLoop
// вернёт ошибку и Run переподключится.
func (s *Session) startHeartbeat(conn *websocket.Conn, interval time.Duration, stop <-chan struct{}) {
	go func() {
		first := time.Duration(rand.Int64N(int64(interval)))
		select {
		case <-stop:
			return
		case <-time.After(first):
		}
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			if !s.acked.Swap(false) {
				s.logger.Warn("gateway heartbeat not acknowledged, dropping connection")
				s.emitError(errZombie)
				_ = conn.Close()
				return
			}
			if err := s.heartbeat(); err != nil {
				s.emitError(fmt.Errorf("discord gateway: heartbeat: %w", err))
				_ = conn.Close()
				return
			}
			select {
			case <-stop:
				return
			case <-t.C:
			}
		}
	}()
}

// closeConn безопасно закрывает текущее соединение.
func (s *Session) closeConn() {
	s.cmu.Lock()
	conn := s.conn
	s.conn = nil
	s.cmu.Unlock()
	if conn == nil {
		return
	}
	s.wmu.Lock()
	// 4000 вместо 1000: сессию можно будет возобновить
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(4000, "reconnecting"),
		time.Now().Add(500*time.Millisecond))
	s.wmu.Unlock()
	_ = conn.Close()
}
