package recruit

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

// SendOnboarding синхронизирует профиль и шлёт в ЛС выбор языка.
// Статус заявки не меняется, повторять можно сколько угодно. Если ЛС
// закрыты, в резервный канал уходит напоминание и возвращается ErrDMBlocked.
func (s *Service) SendOnboarding(ctx context.Context, member directory.Member) error {
	ctx, span := s.tracer.Start(ctx, "recruit.SendOnboarding")
	defer span.End()

	p, err := s.store.SyncFromDirectory(ctx, member.ID, member.Handle, member.DisplayName, member.Administrator)
	if err != nil {
		return persistence("sync profile", err)
	}

	lang := s.langOf(p)
	_, err = s.dir.SendDirectMessage(ctx, member.ID, s.languagePrompt(lang, member))
	switch {
	case err == nil:
		s.logger.Info("onboarding sent", "user_id", member.ID, "lang", lang)
		return nil
	case errors.Is(err, directory.ErrBlocked):
		s.logger.Warn("onboarding dm blocked", "user_id", member.ID)
		s.notifyDMDisabled(ctx, member, lang)
		return fail(ErrDMBlocked, err, nil)
	default:
		return fail(ErrPermission, err, nil)
	}
}

func (s *Service) notifyDMDisabled(ctx context.Context, member directory.Member, lang string) {
	if s.cfg.FallbackChannelID == 0 {
		return
	}
	msg := directory.Message{
		Content: s.text(lang, "onboarding.dm_disabled_notice", i18n.Params{
			"member":  mention(member.ID),
			"command": s.cfg.CommandPrefix + "onboarding",
		}),
		MentionUsers: []snowflake.ID{member.ID},
	}
	if _, err := s.dir.SendChannelMessage(ctx, s.cfg.FallbackChannelID, msg); err != nil {
		s.logger.Warn("fallback notice failed", "user_id", member.ID, "channel_id", s.cfg.FallbackChannelID, "err", err)
	}
}

func (s *Service) welcome(lang string) string {
	if w := s.cfg.Welcome[lang]; w != "" {
		return w
	}
	return s.text(lang, "onboarding.welcome", nil)
}

func (s *Service) languagePrompt(lang string, member directory.Member) directory.Message {
	controls := make([]directory.Control, 0, len(s.catalog.Languages()))
	for _, code := range s.catalog.Languages() {
		controls = append(controls, directory.Control{
			Label:    s.text(code, "lang."+code, nil),
			Style:    directory.StyleSecondary,
			CustomID: Action{Kind: ActLanguage, Lang: code}.Encode(),
		})
	}
	return directory.Message{
		Embed: &directory.Embed{
			Title: s.text(lang, "onboarding.title", nil),
			Description: s.text(lang, "onboarding.greeting", i18n.Params{"name": member.Name()}) +
				"\n\n" + s.welcome(lang) + "\n\n" + s.text(lang, "lang.choose", nil),
		},
		Controls: controls,
	}
}

// ChooseLanguage сохраняет язык и показывает главное меню на нём.
func (s *Service) ChooseLanguage(ctx context.Context, userID snowflake.ID, lang string) (Reply, error) {
	lang = s.catalog.Normalize(lang)
	if err := s.store.SetLanguage(ctx, userID, lang); err != nil {
		return Reply{}, persistence("set language", err)
	}
	return Reply{Message: s.mainMenu(lang), Update: true}, nil
}

func (s *Service) mainMenu(lang string) directory.Message {
	return directory.Message{
		Content: s.text(lang, "lang.set", nil),
		Embed: &directory.Embed{
			Title:       s.text(lang, "onboarding.title", nil),
			Description: s.text(lang, "onboarding.menu", nil) + "\n\n" + s.text(lang, "steam.intro", nil),
		},
		Controls: []directory.Control{
			{Label: s.text(lang, "btn.games", nil), Style: directory.StylePrimary, CustomID: Action{Kind: ActGamesMenu}.Encode()},
			{Label: s.text(lang, "btn.operations", nil), Style: directory.StyleSecondary, CustomID: Action{Kind: ActOperationsMenu}.Encode()},
			{Label: s.text(lang, "btn.steam", nil), Style: directory.StyleSecondary, CustomID: Action{Kind: ActSteamPrompt}.Encode()},
			{Label: s.text(lang, "btn.recruit", nil), Style: directory.StyleSuccess, CustomID: Action{Kind: ActRegister}.Encode()},
		},
	}
}

// GamesMenu — кнопки-переключатели игровых ролей.
func (s *Service) GamesMenu(ctx context.Context, userID snowflake.ID) (Reply, error) {
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, persistence("load profile", err)
	}
	lang := s.langOf(p)
	return s.roleMenu(lang, s.roles.GameRoles(), ActToggleGame, "roles.games_title", "roles.games_body", "roles.games_none"), nil
}

// OperationsMenu доступно только одобренным рекрутам.
func (s *Service) OperationsMenu(ctx context.Context, userID snowflake.ID) (Reply, error) {
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, persistence("load profile", err)
	}
	if p.Status != profile.StatusDone {
		return Reply{}, ErrOperationsLocked
	}
	lang := s.langOf(p)
	return s.roleMenu(lang, s.roles.OperationRoles(), ActToggleOperation, "roles.operations_title", "roles.operations_body", "roles.operations_none"), nil
}

func (s *Service) roleMenu(lang string, opts []RoleOption, kind ActionKind, titleKey, bodyKey, noneKey string) Reply {
	if len(opts) == 0 {
		return textReply(s.text(lang, noneKey, nil))
	}
	body := s.text(lang, bodyKey, nil)
	controls := make([]directory.Control, 0, len(opts))
	for _, o := range opts {
		label := o.Label(lang, s.cfg.DefaultLang)
		if label == "" {
			label = o.ID.String()
		}
		if d := o.Description(lang, s.cfg.DefaultLang); d != "" {
			body += fmt.Sprintf("\n**%s** — %s", label, d)
		}
		controls = append(controls, directory.Control{
			Label:    label,
			Emoji:    o.Emoji,
			Style:    directory.StyleSecondary,
			CustomID: Action{Kind: kind, Role: o.ID}.Encode(),
		})
	}
	return Reply{
		Message: directory.Message{
			Embed:    &directory.Embed{Title: s.text(lang, titleKey, nil), Description: body},
			Controls: controls,
		},
		Ephemeral: true,
	}
}

func findRole(opts []RoleOption, id snowflake.ID) (RoleOption, bool) {
	for _, o := range opts {
		if o.ID == id {
			return o, true
		}
	}
	return RoleOption{}, false
}

// ToggleRole выдаёт роль, если её нет, и снимает, если есть. Роль должна
// быть в настроенном списке; роли для операций — только при статусе done.
// Это не часть жизненного цикла заявки и прав модератора не требует.
func (s *Service) ToggleRole(ctx context.Context, userID, roleID snowflake.ID, operation bool) (Reply, error) {
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return Reply{}, persistence("load profile", err)
	}
	lang := s.langOf(p)

	opts := s.roles.GameRoles()
	if operation {
		if p.Status != profile.StatusDone {
			return Reply{}, ErrOperationsLocked
		}
		opts = s.roles.OperationRoles()
	}
	opt, ok := findRole(opts, roleID)
	if !ok {
		return Reply{}, ErrUnknownRole
	}

	member, err := s.dir.ResolveMember(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return Reply{}, fail(ErrMemberNotFound, err, nil)
		}
		return Reply{}, fail(ErrPermission, err, nil)
	}

	label := opt.Label(lang, s.cfg.DefaultLang)
	if member.HasRole(roleID) {
		if err := s.dir.RevokeRole(ctx, userID, roleID, "self-service role toggle"); err != nil {
			return Reply{}, s.roleError(err)
		}
		s.logger.Info("role removed", "user_id", userID, "role_id", roleID)
		return textReply(s.text(lang, "roles.removed", i18n.Params{"role": label})), nil
	}
	if err := s.dir.GrantRole(ctx, userID, roleID, "self-service role toggle"); err != nil {
		return Reply{}, s.roleError(err)
	}
	s.logger.Info("role added", "user_id", userID, "role_id", roleID)
	return textReply(s.text(lang, "roles.added", i18n.Params{"role": label})), nil
}

func (s *Service) roleError(err error) error {
	if errors.Is(err, directory.ErrNotFound) {
		return fail(ErrUnknownRole, err, nil)
	}
	return fail(ErrRoleManage, err, nil)
}

// RolePanel — постоянная панель для канала: игровые роли, роли для
// операций и регистрация рекрута.
func (s *Service) RolePanel(lang string) directory.Message {
	lang = s.catalog.Normalize(lang)
	games, ops := s.roles.GameRoles(), s.roles.OperationRoles()
	if len(games) == 0 && len(ops) == 0 {
		return directory.Message{Content: s.text(lang, "panel.none", nil)}
	}

	body := s.text(lang, "panel.body", nil)
	section := func(header string, opts []RoleOption) {
		if len(opts) == 0 {
			return
		}
		body += "\n\n**" + header + "**"
		for _, o := range opts {
			line := "\n" + o.Emoji + " " + mentionRole(o.ID)
			if d := o.Description(lang, s.cfg.DefaultLang); d != "" {
				line += " — " + d
			}
			body += line
		}
	}
	section(s.text(lang, "panel.games_header", nil), games)
	section(s.text(lang, "panel.operations_header", nil), ops)

	var controls []directory.Control
	if len(games) > 0 {
		controls = append(controls, directory.Control{Label: s.text(lang, "btn.games", nil), Style: directory.StylePrimary, CustomID: Action{Kind: ActGamesMenu}.Encode()})
	}
	if len(ops) > 0 {
		controls = append(controls, directory.Control{Label: s.text(lang, "btn.operations", nil), Style: directory.StyleSecondary, CustomID: Action{Kind: ActOperationsMenu}.Encode()})
	}
	controls = append(controls, directory.Control{Label: s.text(lang, "btn.recruit", nil), Style: directory.StyleSuccess, CustomID: Action{Kind: ActRegister}.Encode()})

	return directory.Message{
		Embed:    &directory.Embed{Title: s.text(lang, "panel.title", nil), Description: body},
		Controls: controls,
	}
}

func mention(id snowflake.ID) string     { return "<@" + id.String() + ">" }
func mentionRole(id snowflake.ID) string { return "<@&" + id.String() + ">" }
func mentionChan(id snowflake.ID) string { return "<#" + id.String() + ">" }
