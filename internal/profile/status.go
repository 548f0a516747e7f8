package profile

import (
	"fmt"
	"strings"
)

// Status — состояние заявки рекрута.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReady    Status = "ready"
	StatusDone     Status = "done"
	StatusRejected Status = "rejected"
)

// Statuses в порядке продвижения заявки.
var Statuses = []Status{StatusPending, StatusReady, StatusDone, StatusRejected}

// ParseStatus разбирает статус без учёта регистра; пустая строка — pending.
func ParseStatus(s string) (Status, error) {
	v := Status(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return StatusPending, nil
	}
	for _, st := range Statuses {
		if st == v {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown recruit status %q", s)
}

func (s Status) Valid() bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal — из done и rejected переходов нет.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusRejected
}

// Applied — заявка уже подана (или решена).
func (s Status) Applied() bool {
	return s == StatusReady || s.Terminal()
}

// CanTransition проверяет ребро графа pending → ready → done|rejected.
// Запись того же статуса считается допустимым no-op.
func (s Status) CanTransition(next Status) bool {
	if s == "" {
		s = StatusPending
	}
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusReady
	case StatusReady:
		return next == StatusDone || next == StatusRejected
	default:
		return false
	}
}
