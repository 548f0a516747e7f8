package recruit

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

type Decision int

const (
	DecisionApprove Decision = iota + 1
	DecisionReject
)

func (d Decision) String() string {
	if d == DecisionApprove {
		return "approve"
	}
	return "reject"
}

func (d Decision) status() profile.Status {
	if d == DecisionApprove {
		return profile.StatusDone
	}
	return profile.StatusRejected
}

// RequestDecision — нажатие Approve / Deny на карточке. Неавторизованный
// actor получает отказ без изменений. Иначе выдаётся подтверждение Да / Нет,
// действующее ConfirmTimeout и только для этого actor.
func (s *Service) RequestDecision(ctx context.Context, actor directory.Member, applicantID snowflake.ID, d Decision, summary directory.MessageRef, locale string) (Reply, error) {
	lang := s.catalog.Normalize(locale)
	if !s.Authorized(ctx, actor) {
		s.logger.Info("unauthorized decision attempt", "actor", actor.ID, "applicant", applicantID, "decision", d.String())
		return Reply{}, ErrNotAuthorized
	}

	p, err := s.store.GetOrCreate(ctx, applicantID)
	if err != nil {
		return Reply{}, persistence("load applicant", err)
	}
	if err := s.checkDecidable(ctx, p, d); err != nil {
		return Reply{}, err
	}

	token := s.confirms.put(pendingDecision{
		actor:     actor.ID,
		applicant: applicantID,
		decision:  d,
		summary:   summary,
	})

	key := "decision.confirm_approve"
	if d == DecisionReject {
		key = "decision.confirm_reject"
	}
	return Reply{
		Message: directory.Message{
			Content: s.text(lang, key, i18n.Params{"recruit": mention(applicantID)}),
			Controls: []directory.Control{
				{Label: s.text(lang, "btn.yes", nil), Style: directory.StyleSuccess, CustomID: Action{Kind: ActConfirmYes, Token: token}.Encode()},
				{Label: s.text(lang, "btn.no", nil), Style: directory.StyleSecondary, CustomID: Action{Kind: ActConfirmNo, Token: token}.Encode()},
			},
		},
		Ephemeral: true,
	}, nil
}

// checkDecidable: решение возможно только из ready, одобрение — только с
// привязанным Steam. Во втором случае заявителю уходит просьба привязать.
func (s *Service) checkDecidable(ctx context.Context, p profile.Profile, d Decision) error {
	if p.Status != profile.StatusReady {
		return fail(ErrNotReady, nil, i18n.Params{"status": string(p.Status)})
	}
	if d == DecisionApprove && !p.HasSteam() {
		s.requestSteam(ctx, p)
		return ErrApprovalSteam
	}
	return nil
}

func (s *Service) requestSteam(ctx context.Context, p profile.Profile) {
	lang := s.langOf(p)
	msg := directory.Message{
		Content:  s.text(lang, "decision.dm_link_steam", nil),
		Controls: []directory.Control{s.steamControl(lang)},
	}
	if _, err := s.dir.SendDirectMessage(ctx, p.UserID, msg); err != nil {
		s.logger.Warn("steam request dm failed", "user_id", p.UserID, "err", err)
	}
}

// Confirm обрабатывает Да / Нет. «Нет» только закрывает подтверждение,
// кнопки карточки остаются активными. «Да» выполняет решение, публикует
// итог в канал карточки и выключает её кнопки. Просроченный токен даёт
// безобидный ответ без перехода.
func (s *Service) Confirm(ctx context.Context, actor directory.Member, token uuid.UUID, yes bool, locale string) (Reply, error) {
	lang := s.catalog.Normalize(locale)
	closed := func(content string) Reply {
		return Reply{Message: directory.Message{Content: content}, Update: true, Ephemeral: true}
	}

	pd, err := s.confirms.take(token, actor.ID)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			return closed(s.text(lang, "decision.expired", nil)), nil
		}
		return Reply{}, err
	}
	if !yes {
		s.logger.Info("decision cancelled", "actor", actor.ID, "applicant", pd.applicant, "decision", pd.decision.String())
		return closed(s.text(lang, "decision.cancelled", nil)), nil
	}
	if !s.Authorized(ctx, actor) {
		return closed(s.text(lang, ErrNotAuthorized.Key, nil)), ErrNotAuthorized
	}

	res, err := s.Decide(ctx, actor, pd.applicant, pd.decision)
	if err != nil {
		key, params := describe(err)
		return closed(s.text(lang, key, params)), err
	}

	if pd.summary.ChannelID != 0 {
		key := "decision.approved_channel"
		if pd.decision == DecisionReject {
			key = "decision.rejected_channel"
		}
		note := directory.Message{Content: s.text(s.cfg.DefaultLang, key, i18n.Params{
			"recruit":   mention(res.Profile.UserID),
			"moderator": mention(actor.ID),
		})}
		if _, err := s.dir.SendChannelMessage(ctx, pd.summary.ChannelID, note); err != nil {
			s.logger.Warn("decision note not posted", "channel_id", pd.summary.ChannelID, "err", err)
		}
		if pd.summary.MessageID != 0 {
			if err := s.dir.DisableControls(ctx, pd.summary); err != nil {
				s.logger.Warn("summary controls not disabled", "message_id", pd.summary.MessageID, "err", err)
			}
		}
	}

	label := "decision.approved_label"
	if pd.decision == DecisionReject {
		label = "decision.rejected_label"
	}
	return closed(s.text(lang, label, nil)), nil
}

// DecisionResult — что удалось сделать при решении. Шаги после смены
// статуса не фатальны: их сбои пишутся в лог.
type DecisionResult struct {
	Profile       profile.Profile
	MemberPresent bool
	Archived      int
	Notified      bool
}

// Decide выполняет одобрение или отказ по свежему профилю. Решения по
// одному заявителю идут по очереди под его замком.
//
// Одобрение: ready + Steam + участник на сервере → done, снять роль
// рекрута, выдать роль участника (если настроена). Отказ: ready →
// rejected, снять роль рекрута; ушедший с сервера заявитель отказу не
// мешает. В обоих случаях каналы архивируются и заявителю пишется ЛС.
func (s *Service) Decide(ctx context.Context, actor directory.Member, applicantID snowflake.ID, d Decision) (DecisionResult, error) {
	ctx, span := s.tracer.Start(ctx, "recruit.Decide", trace.WithAttributes(
		attribute.String("applicant", applicantID.String()),
		attribute.String("decision", d.String()),
	))
	defer span.End()

	// тот же замок, что у EnsureWorkspace: второе решение увидит уже
	// записанный статус
	unlock, err := s.prov.locks.Lock(ctx, applicantID)
	if err != nil {
		return DecisionResult{}, err
	}
	defer unlock()

	p, err := s.store.GetOrCreate(ctx, applicantID)
	if err != nil {
		return DecisionResult{}, persistence("load applicant", err)
	}
	if err := s.checkDecidable(ctx, p, d); err != nil {
		return DecisionResult{}, err
	}

	res := DecisionResult{MemberPresent: true}
	if _, err := s.dir.ResolveMember(ctx, applicantID); err != nil {
		switch {
		case errors.Is(err, directory.ErrNotFound) && d == DecisionReject:
			res.MemberPresent = false
		case errors.Is(err, directory.ErrNotFound):
			return DecisionResult{}, fail(ErrApplicantNotFound, err, nil)
		default:
			return DecisionResult{}, fail(ErrPermission, err, nil)
		}
	}

	if err := s.store.SetRecruitStatus(ctx, applicantID, d.status()); err != nil {
		if errors.Is(err, profile.ErrInvalidTransition) {
			return DecisionResult{}, fail(ErrNotReady, err, i18n.Params{"status": string(p.Status)})
		}
		return DecisionResult{}, persistence("set decision status", err)
	}
	p.Status = d.status()
	res.Profile = p
	s.logger.Info("recruit decided", "applicant", applicantID, "code", p.RecruitCode(),
		"decision", d.String(), "actor", actor.ID)

	reason := "recruit " + d.String() + " by " + actor.ID.String()
	if res.MemberPresent {
		if s.cfg.RecruitRoleID != 0 {
			if err := s.dir.RevokeRole(ctx, applicantID, s.cfg.RecruitRoleID, reason); err != nil {
				s.logger.Warn("recruit role not revoked", "applicant", applicantID, "err", err)
			}
		}
		if d == DecisionApprove && s.cfg.MemberRoleID != 0 {
			if err := s.dir.GrantRole(ctx, applicantID, s.cfg.MemberRoleID, reason); err != nil {
				s.logger.Warn("member role not granted", "applicant", applicantID, "err", err)
			}
		}
	}

	res.Archived = s.archiveWorkspace(ctx, p, reason)

	if res.MemberPresent {
		lang := s.langOf(p)
		key := "decision.dm_approved"
		if d == DecisionReject {
			key = "decision.dm_rejected"
		}
		if _, err := s.dir.SendDirectMessage(ctx, applicantID, directory.Message{Content: s.text(lang, key, nil)}); err != nil {
			s.logger.Warn("decision dm failed", "applicant", applicantID, "err", err)
		} else {
			res.Notified = true
		}
	}
	return res, nil
}

// archiveWorkspace переименовывает каналы заявителя, переносит их в архив
// (если категория задана) и закрывает заявителю доступ. Возвращает число
// заархивированных каналов.
func (s *Service) archiveWorkspace(ctx context.Context, p profile.Profile, reason string) int {
	n := 0
	for _, id := range []snowflake.ID{p.TextChannelID, p.VoiceChannelID} {
		if id == 0 {
			continue
		}
		ch, err := s.dir.ResolveChannel(ctx, id)
		if err != nil {
			s.logger.Warn("recruit channel not archived", "channel_id", id, "err", err)
			continue
		}
		err = s.dir.ArchiveChannel(ctx, directory.ArchiveSpec{
			ChannelID:  id,
			Name:       ArchivedName(ch.Name),
			CategoryID: s.cfg.ArchiveCategoryID,
			DenyUser:   p.UserID,
			Reason:     reason,
		})
		if err != nil {
			s.logger.Warn("recruit channel not archived", "channel_id", id, "err", err)
			continue
		}
		n++
	}
	return n
}
