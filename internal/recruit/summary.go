package recruit

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

const summaryColor = 0x2ecc71

// Summary — карточка заявителя для штаба с кнопками Approve / Deny.
// Штабные тексты идут на языке по умолчанию.
func (s *Service) Summary(ctx context.Context, p profile.Profile, member directory.Member) directory.Message {
	lang := s.cfg.DefaultLang

	steam := s.text(lang, "summary.steam_missing", nil)
	if p.HasSteam() {
		steam = p.SteamURL()
		if s.steam != nil {
			if pl, err := s.steam.PlayerSummary(ctx, p.SteamID); err == nil && pl.PersonaName != "" {
				steam += "\n" + pl.PersonaName
			}
		}
	}

	name := member.Name()
	if name == "" {
		name = p.DisplayName
	}
	if name == "" {
		name = p.RecruitCode()
	}

	msg := directory.Message{
		Embed: &directory.Embed{
			Title: s.text(lang, "summary.title", i18n.Params{"name": name}),
			Color: summaryColor,
			Fields: []directory.EmbedField{
				{Name: s.text(lang, "summary.code", nil), Value: p.RecruitCode(), Inline: true},
				{Name: s.text(lang, "summary.discord", nil), Value: mention(p.UserID), Inline: true},
				{Name: s.text(lang, "summary.steam", nil), Value: steam},
				{Name: s.text(lang, "summary.language", nil), Value: strings.ToUpper(s.langOf(p)), Inline: true},
				{Name: s.text(lang, "summary.status", nil), Value: s.text(lang, "summary.status_ready", nil), Inline: true},
			},
			Footer: s.text(lang, "summary.footer", nil),
		},
		Controls: s.decisionControls(lang, p.UserID),
	}
	if s.cfg.PingRoleID != 0 {
		msg.Content = s.text(lang, "summary.ping", i18n.Params{
			"ping":    mentionRole(s.cfg.PingRoleID),
			"recruit": mention(p.UserID),
		})
		msg.MentionRoles = []snowflake.ID{s.cfg.PingRoleID}
	}
	return msg
}

func (s *Service) decisionControls(lang string, applicant snowflake.ID) []directory.Control {
	return []directory.Control{
		{
			Label:    s.text(lang, "btn.approve", nil),
			Style:    directory.StyleSuccess,
			CustomID: Action{Kind: ActApprove, Target: applicant}.Encode(),
		},
		{
			Label:    s.text(lang, "btn.reject", nil),
			Style:    directory.StyleDanger,
			CustomID: Action{Kind: ActReject, Target: applicant}.Encode(),
		},
	}
}

// postSummary публикует карточку в текстовый канал собеседования.
// Ошибка только пишется в лог: каналы уже созданы и записаны.
func (s *Service) postSummary(ctx context.Context, p profile.Profile, member directory.Member, ws Workspace) {
	ref, err := s.dir.SendChannelMessage(ctx, ws.TextID, s.Summary(ctx, p, member))
	if err != nil {
		s.logger.Error("recruit summary not posted", "user_id", p.UserID, "channel_id", ws.TextID, "err", err)
		return
	}
	s.logger.Info("recruit summary posted", "user_id", p.UserID, "message_id", ref.MessageID)
}
