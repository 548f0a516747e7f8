package recruit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

const (
	maxEmbedDescription = 4000
	overviewPerStatus   = 10
)

// ListRecruits — список заявок со статусом statusArg либо сводка по всем
// статусам, если statusArg пуст.
func (s *Service) ListRecruits(ctx context.Context, statusArg, lang string) (directory.Message, error) {
	lang = s.catalog.Normalize(lang)

	if strings.TrimSpace(statusArg) == "" {
		var b strings.Builder
		for _, st := range profile.Statuses {
			list, err := s.store.FindByStatus(ctx, st)
			if err != nil {
				return directory.Message{}, persistence("list recruits", err)
			}
			fmt.Fprintf(&b, "**%s** (%d)\n", strings.ToUpper(string(st)), len(list))
			if len(list) == 0 {
				b.WriteString(s.text(lang, "staff.none", nil) + "\n\n")
				continue
			}
			shown := list
			if len(shown) > overviewPerStatus {
				shown = shown[:overviewPerStatus]
			}
			for _, p := range shown {
				b.WriteString(recruitLine(p) + "\n")
			}
			if rest := len(list) - len(shown); rest > 0 {
				fmt.Fprintf(&b, "… +%d\n", rest)
			}
			b.WriteString("\n")
		}
		return directory.Message{Embed: &directory.Embed{
			Title:       s.text(lang, "staff.overview_title", nil),
			Description: clip(b.String(), maxEmbedDescription),
		}}, nil
	}

	st, err := profile.ParseStatus(statusArg)
	if err != nil {
		return directory.Message{}, fail(ErrUnknownStatus, err, nil)
	}
	list, err := s.store.FindByStatus(ctx, st)
	if err != nil {
		return directory.Message{}, persistence("list recruits", err)
	}
	if len(list) == 0 {
		return directory.Message{Content: s.text(lang, "staff.none_with_status", i18n.Params{"status": string(st)})}, nil
	}
	lines := make([]string, 0, len(list))
	for _, p := range list {
		lines = append(lines, recruitLine(p))
	}
	return directory.Message{Embed: &directory.Embed{
		Title:       s.text(lang, "staff.with_status_title", i18n.Params{"status": strings.ToUpper(string(st))}),
		Description: clip(strings.Join(lines, "\n"), maxEmbedDescription),
	}}, nil
}

func recruitLine(p profile.Profile) string {
	line := fmt.Sprintf("`%s` %s", p.RecruitCode(), mention(p.UserID))
	if p.Handle != "" {
		line += " (" + p.Handle + ")"
	}
	if p.HasSteam() {
		line += " [Steam](" + p.SteamURL() + ")"
	}
	return line
}

// RecruitInfo — карточка профиля для штаба. target — ID или handle.
func (s *Service) RecruitInfo(ctx context.Context, userID snowflake.ID, handle, lang string) (directory.Message, error) {
	lang = s.catalog.Normalize(lang)

	var (
		p   profile.Profile
		err error
	)
	if userID != 0 {
		p, err = s.store.FindByID(ctx, userID)
	} else {
		p, err = s.store.FindByHandle(ctx, handle)
	}
	if err != nil {
		target := handle
		if userID != 0 {
			target = mention(userID)
		}
		if errors.Is(err, profile.ErrNotFound) {
			return directory.Message{}, fail(ErrProfileNotFound, err, i18n.Params{"target": target})
		}
		return directory.Message{}, persistence("find recruit", err)
	}

	unknown := s.text(lang, "value.unknown", nil)
	orUnknown := func(id snowflake.ID) string {
		if id == 0 {
			return unknown
		}
		return mentionChan(id)
	}
	steam := s.text(lang, "summary.steam_missing", nil)
	if p.HasSteam() {
		steam = p.SteamURL()
	}

	return directory.Message{Embed: &directory.Embed{
		Title: s.text(lang, "staff.recruit_title", nil),
		Fields: []directory.EmbedField{
			{Name: s.text(lang, "summary.code", nil), Value: p.RecruitCode(), Inline: true},
			{Name: s.text(lang, "summary.discord", nil), Value: mention(p.UserID), Inline: true},
			{Name: s.text(lang, "summary.status", nil), Value: strings.ToUpper(string(p.Status)), Inline: true},
			{Name: s.text(lang, "summary.steam", nil), Value: steam},
			{Name: s.text(lang, "summary.language", nil), Value: strings.ToUpper(s.langOf(p)), Inline: true},
			{Name: s.text(lang, "staff.text_channel", nil), Value: orUnknown(p.TextChannelID), Inline: true},
			{Name: s.text(lang, "staff.voice_channel", nil), Value: orUnknown(p.VoiceChannelID), Inline: true},
		},
	}}, nil
}

// ErrorText — текст ошибки для пользователя на языке lang.
func (s *Service) ErrorText(lang string, err error) string {
	key, params := describe(err)
	return s.text(s.catalog.Normalize(lang), key, params)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
