package recruit

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ActionKind — что делает кнопка (или модальное окно).
type ActionKind uint8

const (
	ActLanguage ActionKind = iota + 1
	ActGamesMenu
	ActOperationsMenu
	ActToggleGame
	ActToggleOperation
	ActSteamPrompt
	ActSteamSubmit
	ActRegister
	ActApprove
	ActReject
	ActConfirmYes
	ActConfirmNo
)

var actionNames = map[ActionKind]string{
	ActLanguage:        "language",
	ActGamesMenu:       "games_menu",
	ActOperationsMenu:  "operations_menu",
	ActToggleGame:      "toggle_game",
	ActToggleOperation: "toggle_operation",
	ActSteamPrompt:     "steam_prompt",
	ActSteamSubmit:     "steam_submit",
	ActRegister:        "register",
	ActApprove:         "approve",
	ActReject:          "reject",
	ActConfirmYes:      "confirm_yes",
	ActConfirmNo:       "confirm_no",
}

func (k ActionKind) String() string {
	if n, ok := actionNames[k]; ok {
		return n
	}
	return fmt.Sprintf("action(%d)", uint8(k))
}

// Deferred: действие успевает сходить в Discord много раз, поэтому на
// нажатие сначала отвечают «принято», а итог дописывают потом. update —
// итог заменит сообщение с кнопкой.
func (k ActionKind) Deferred() (update, ok bool) {
	switch k {
	case ActConfirmYes:
		return true, true
	case ActRegister:
		return false, true
	}
	return false, false
}

// Action — тег действия, который живёт в custom_id кнопки. Сам по себе он
// ничего не решает: обработчик всегда перечитывает профиль из хранилища.
type Action struct {
	Kind   ActionKind
	Target snowflake.ID // заявитель (approve/reject) или владелец формы
	Role   snowflake.ID
	Lang   string
	Token  uuid.UUID // токен подтверждения
}

const (
	actionPrefix = "rb1:"
	maxCustomID  = 100

	fieldKind   protowire.Number = 1
	fieldTarget protowire.Number = 2
	fieldRole   protowire.Number = 3
	fieldLang   protowire.Number = 4
	fieldToken  protowire.Number = 5
)

var ErrNotAction = errors.New("custom id is not a recruit action")

// Encode упаковывает действие в custom_id (не длиннее 100 символов).
func (a Action) Encode() string {
	b := protowire.AppendTag(nil, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Kind))
	if a.Target != 0 {
		b = protowire.AppendTag(b, fieldTarget, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Target))
	}
	if a.Role != 0 {
		b = protowire.AppendTag(b, fieldRole, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(a.Role))
	}
	if a.Lang != "" {
		b = protowire.AppendTag(b, fieldLang, protowire.BytesType)
		b = protowire.AppendString(b, a.Lang)
	}
	if a.Token != uuid.Nil {
		b = protowire.AppendTag(b, fieldToken, protowire.BytesType)
		b = protowire.AppendBytes(b, a.Token[:])
	}
	return actionPrefix + base64.RawURLEncoding.EncodeToString(b)
}

// DecodeAction разбирает custom_id. Чужие custom_id дают ErrNotAction.
func DecodeAction(customID string) (Action, error) {
	raw, ok := strings.CutPrefix(customID, actionPrefix)
	if !ok || len(customID) > maxCustomID {
		return Action{}, ErrNotAction
	}
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Action{}, fmt.Errorf("decode action: %w", err)
	}

	var a Action
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Action{}, fmt.Errorf("decode action: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && (num == fieldKind || num == fieldTarget || num == fieldRole):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Action{}, fmt.Errorf("decode action: %w", protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldKind:
				a.Kind = ActionKind(v)
			case fieldTarget:
				a.Target = snowflake.ID(v)
			case fieldRole:
				a.Role = snowflake.ID(v)
			}
		case typ == protowire.BytesType && (num == fieldLang || num == fieldToken):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Action{}, fmt.Errorf("decode action: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldLang {
				a.Lang = string(v)
				continue
			}
			tok, err := uuid.FromBytes(v)
			if err != nil {
				return Action{}, fmt.Errorf("decode action token: %w", err)
			}
			a.Token = tok
		default:
			// неизвестные поля пропускаем
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Action{}, fmt.Errorf("decode action: %w", protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if _, ok := actionNames[a.Kind]; !ok {
		return Action{}, fmt.Errorf("decode action: unknown kind %d", a.Kind)
	}
	return a, nil
}
