// Package profile описывает запись участника (профиль рекрута) и контракт
// хранилища профилей.
//
// Профиль создаётся при первом же событии по человеку (get-or-create) и
// больше никогда не удаляется. Поля Handle / DisplayName / IsAdmin — это кэш
// данных из Discord, обновляемый при синхронизации; источником истины для
// прав они не являются.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrNotFound возвращают только явные поисковые запросы (FindByID/FindByHandle).
	ErrNotFound = errors.New("profile not found")

	// ErrInvalidTransition — попытка сдвинуть статус против графа переходов.
	ErrInvalidTransition = errors.New("invalid recruit status transition")
)

type Profile struct {
	// Key — внутренний числовой ключ строки; из него строится код рекрута.
	Key    int64
	UserID snowflake.ID

	// кэш из Discord
	Handle      string
	DisplayName string
	IsAdmin     bool

	Language string
	SteamID  string
	Status   Status

	TextChannelID  snowflake.ID
	VoiceChannelID snowflake.ID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecruitCode возвращает стабильный код вида R-0042.
func (p Profile) RecruitCode() string {
	return fmt.Sprintf("R-%04d", p.Key)
}

// HasWorkspace — записан ли за профилем хотя бы один канал собеседования.
func (p Profile) HasWorkspace() bool {
	return p.TextChannelID != 0 || p.VoiceChannelID != 0
}

func (p Profile) HasSteam() bool {
	return p.SteamID != ""
}

// SteamURL — ссылка на профиль Steam или пустая строка.
func (p Profile) SteamURL() string {
	if p.SteamID == "" {
		return ""
	}
	return "https://steamcommunity.com/profiles/" + p.SteamID
}

// LanguageOr возвращает язык профиля либо def, если язык не выбран.
func (p Profile) LanguageOr(def string) string {
	if p.Language == "" {
		return def
	}
	return p.Language
}

// Store — постоянное хранилище профилей. Все мутации работают как upsert:
// отсутствующая запись сначала создаётся. Каждый вызов — одна транзакция.
type Store interface {
	GetOrCreate(ctx context.Context, userID snowflake.ID) (Profile, error)
	SyncFromDirectory(ctx context.Context, userID snowflake.ID, handle, displayName string, isAdmin bool) (Profile, error)

	SetLanguage(ctx context.Context, userID snowflake.ID, lang string) error
	SetSteamID(ctx context.Context, userID snowflake.ID, steamID string) error
	SetRecruitStatus(ctx context.Context, userID snowflake.ID, status Status) error
	SetChannels(ctx context.Context, userID snowflake.ID, textID, voiceID snowflake.ID) error

	FindByStatus(ctx context.Context, status Status) ([]Profile, error)
	FindByID(ctx context.Context, userID snowflake.ID) (Profile, error)
	FindByHandle(ctx context.Context, handle string) (Profile, error)
}
