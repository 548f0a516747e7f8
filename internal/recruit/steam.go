package recruit

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/steamapi"
)

// SteamInputID — custom_id поля ввода в модальном окне.
const SteamInputID = "steam_id"

var (
	reSteamID  = regexp.MustCompile(`^7656119\d{10}$`)
	reSteamURL = regexp.MustCompile(`^https?://steamcommunity\.com/profiles/(\d+)/?$`)
)

// ParseSteamID принимает SteamID64 (17 цифр, префикс 7656119) или ссылку
// вида https://steamcommunity.com/profiles/<id>.
func ParseSteamID(input string) (string, error) {
	v := strings.TrimSpace(input)
	if m := reSteamURL.FindStringSubmatch(v); m != nil {
		v = m[1]
	}
	if !reSteamID.MatchString(v) {
		return "", ErrSteamInvalid
	}
	return v, nil
}

// SteamPrompt открывает форму ввода SteamID64, привязанную к пользователю.
func (s *Service) SteamPrompt(ctx context.Context, userID snowflake.ID) (Reply, error) {
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, persistence("load profile", err)
	}
	lang := s.langOf(p)
	return Reply{Modal: &directory.Modal{
		CustomID: Action{Kind: ActSteamSubmit, Target: userID}.Encode(),
		Title:    s.text(lang, "steam.modal_title", nil),
		Inputs: []directory.TextInput{{
			CustomID:    SteamInputID,
			Label:       s.text(lang, "steam.modal_label", nil),
			Placeholder: s.text(lang, "steam.modal_placeholder", nil),
			Value:       p.SteamID,
			MinLength:   17,
			MaxLength:   80,
			Required:    true,
		}},
	}}, nil
}

// LinkSteam проверяет и сохраняет SteamID64. При неверном вводе профиль не
// меняется. Если подключён Steam Web API и он не знает аккаунт — это тоже
// ошибка ввода; сбои самого API привязку не блокируют.
func (s *Service) LinkSteam(ctx context.Context, userID snowflake.ID, input string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "recruit.LinkSteam")
	defer span.End()

	steamID, err := ParseSteamID(input)
	if err != nil {
		return "", err
	}

	if s.steam != nil {
		if _, err := s.steam.PlayerSummary(ctx, steamID); err != nil {
			if errors.Is(err, steamapi.ErrNoAccount) {
				return "", fail(ErrSteamUnknown, err, i18n.Params{"steam_id": steamID})
			}
			s.logger.Warn("steam lookup failed, linking anyway", "user_id", userID, "err", err)
		}
	}

	if err := s.store.SetSteamID(ctx, userID, steamID); err != nil {
		return "", persistence("set steam id", err)
	}
	s.logger.Info("steam linked", "user_id", userID, "steam_id", steamID)
	return steamID, nil
}

func (s *Service) LinkSteamReply(ctx context.Context, userID snowflake.ID, input string) (Reply, error) {
	steamID, err := s.LinkSteam(ctx, userID, input)
	if err != nil {
		return Reply{}, err
	}
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, persistence("load profile", err)
	}
	return textReply(s.text(s.langOf(p), "steam.saved", i18n.Params{"steam_id": steamID})), nil
}

// steamControl — кнопка, открывающая форму Steam.
func (s *Service) steamControl(lang string) directory.Control {
	return directory.Control{
		Label:    s.text(lang, "btn.steam", nil),
		Style:    directory.StylePrimary,
		CustomID: Action{Kind: ActSteamPrompt}.Encode(),
	}
}
