// Package directory описывает, что ядру нужно от сервера сообществ:
// участники, роли, каналы и сообщения. Реализация для Discord лежит в
// internal/discord; в тестах подставляется фейк.
package directory

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrNotFound — участник, канал или сообщение не существуют.
	ErrNotFound = errors.New("directory: not found")
	// ErrForbidden — у бота нет прав на операцию.
	ErrForbidden = errors.New("directory: forbidden")
	// ErrBlocked — пользователь закрыл личные сообщения.
	ErrBlocked = errors.New("directory: direct messages blocked")
)

type Member struct {
	ID          snowflake.ID
	Handle      string
	DisplayName string
	RoleIDs     []snowflake.ID
	Bot         bool

	// права, вычисленные по ролям сервера
	Administrator bool
	ManageGuild   bool
}

func (m Member) HasRole(id snowflake.ID) bool {
	if id == 0 {
		return false
	}
	for _, r := range m.RoleIDs {
		if r == id {
			return true
		}
	}
	return false
}

// HasAnyRole — есть ли хотя бы одна роль из ids.
func (m Member) HasAnyRole(ids []snowflake.ID) bool {
	for _, id := range ids {
		if m.HasRole(id) {
			return true
		}
	}
	return false
}

// Name — видимое имя с запасным вариантом.
func (m Member) Name() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Handle
}

type ChannelKind int

const (
	ChannelText ChannelKind = iota
	ChannelVoice
)

func (k ChannelKind) String() string {
	if k == ChannelVoice {
		return "voice"
	}
	return "text"
}

// ChannelSpec — приватный канал: скрыт от всех, кроме Allow-участников и ролей.
type ChannelSpec struct {
	Name       string
	Kind       ChannelKind
	CategoryID snowflake.ID
	Topic      string
	AllowUsers []snowflake.ID
	AllowRoles []snowflake.ID
	Reason     string
}

type Channel struct {
	ID         snowflake.ID
	Name       string
	Kind       ChannelKind
	CategoryID snowflake.ID
}

// ArchiveSpec — переименование, перенос и закрытие доступа для участника.
type ArchiveSpec struct {
	ChannelID  snowflake.ID
	Name       string
	CategoryID snowflake.ID
	DenyUser   snowflake.ID
	Reason     string
}

type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
)

// Control — кнопка под сообщением. CustomID не длиннее 100 символов.
type Control struct {
	Label    string
	Emoji    string
	Style    ButtonStyle
	CustomID string
	URL      string
	Disabled bool
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

// Message — сообщение, которое бот отправляет. Controls делятся на ряды по 5.
type Message struct {
	Content  string
	Embed    *Embed
	Controls []Control
	// Mentions — кого разрешено пинговать в Content.
	MentionUsers []snowflake.ID
	MentionRoles []snowflake.ID
}

type MessageRef struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

// TextInput — поле модального окна.
type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Value       string
	MinLength   int
	MaxLength   int
	Required    bool
}

type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// Gateway — операции с сервером, которые использует ядро.
type Gateway interface {
	ResolveMember(ctx context.Context, userID snowflake.ID) (Member, error)
	ListMembers(ctx context.Context) ([]Member, error)

	GrantRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error
	RevokeRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error

	CreateScopedChannel(ctx context.Context, spec ChannelSpec) (Channel, error)
	ResolveChannel(ctx context.Context, channelID snowflake.ID) (Channel, error)
	DeleteChannel(ctx context.Context, channelID snowflake.ID, reason string) error
	ArchiveChannel(ctx context.Context, spec ArchiveSpec) error

	SendDirectMessage(ctx context.Context, userID snowflake.ID, msg Message) (MessageRef, error)
	SendChannelMessage(ctx context.Context, channelID snowflake.ID, msg Message) (MessageRef, error)
	DisableControls(ctx context.Context, ref MessageRef) error
}
