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

// errReconnect — сервер попросил переподключиться (op 7 или op 9).
var errReconnect = errors.New("discord gateway: reconnect requested")

// Коды закрытия, после которых переподключаться нельзя.
var fatalCloseCodes = map[int]string{
	4004: "authentication failed",
	4010: "invalid shard",
	4011: "sharding required",
	4012: "invalid api version",
	4013: "invalid intents",
	4014: "disallowed intents",
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if reason, ok := fatalCloseCodes[ce.Code]; ok {
					return fmt.Errorf("%w: %d %s", ErrFatalClose, ce.Code, reason)
				}
				if ce.Code == 4007 || ce.Code == 4009 {
					// неверный seq или сессия истекла — только новый Identify
					s.resetSession()
				}
			}
			return fmt.Errorf("discord gateway: read: %w", err)
		}

		switch p.Op {
		case opDispatch:
			if p.S != nil {
				s.seq.Store(*p.S)
			}
			s.dispatch(p.T, p.D)
		case opHeartbeat:
			if err := s.heartbeat(); err != nil {
				return fmt.Errorf("discord gateway: heartbeat: %w", err)
			}
		case opHeartbeatACK:
			s.acked.Store(true)
		case opReconnect:
			s.logger.Info("gateway asked to reconnect")
			return errReconnect
		case opInvalidSession:
			var resumable bool
			_ = json.Unmarshal(p.D, &resumable)
			if !resumable {
				s.resetSession()
			}
			s.logger.Warn("gateway session invalidated", "resumable", resumable)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second + time.Duration(rand.Int64N(int64(4*time.Second)))):
			}
			return errReconnect
		}
	}
}

func (s *Session) resetSession() {
	s.sessionID = ""
	s.resumeURL = ""
	s.seq.Store(0)
}

// dispatch разбирает событие и вызывает колбэк в отдельной горутине.
func (s *Session) dispatch(event string, raw json.RawMessage) {
	switch event {
	case "READY":
		var r Ready
		if !s.decode(event, raw, &r) {
			return
		}
		s.sessionID, s.resumeURL = r.SessionID, r.ResumeGatewayURL
		s.logger.Info("gateway ready", "user", r.User.Username, "session", r.SessionID)
		if s.OnConnected != nil {
			go s.OnConnected()
		}
		if s.OnReady != nil {
			go s.OnReady(r)
		}
	case "RESUMED":
		s.logger.Info("gateway session resumed")
		if s.OnConnected != nil {
			go s.OnConnected()
		}
	case "GUILD_MEMBER_ADD":
		var m MemberEvent
		if s.decode(event, raw, &m) && s.OnMemberAdd != nil {
			go s.OnMemberAdd(m)
		}
	case "GUILD_MEMBER_UPDATE":
		var m MemberEvent
		if s.decode(event, raw, &m) && s.OnMemberUpdate != nil {
			go s.OnMemberUpdate(m)
		}
	case "GUILD_MEMBER_REMOVE":
		var m MemberRemove
		if s.decode(event, raw, &m) && s.OnMemberRemove != nil {
			go s.OnMemberRemove(m)
		}
	case "GUILD_ROLE_CREATE", "GUILD_ROLE_UPDATE", "GUILD_ROLE_DELETE":
		if s.OnRolesChanged != nil {
			go s.OnRolesChanged()
		}
	case "MESSAGE_CREATE":
		var m MessageCreate
		if s.decode(event, raw, &m) && s.OnMessage != nil {
			go s.OnMessage(m)
		}
	case "INTERACTION_CREATE":
		var in Interaction
		if s.decode(event, raw, &in) && s.OnInteraction != nil {
			go s.OnInteraction(in)
		}
	}
}

func (s *Session) decode(event string, raw json.RawMessage, v any) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.emitError(fmt.Errorf("discord gateway: decode %s: %w", event, err))
		return false
	}
	return true
}
