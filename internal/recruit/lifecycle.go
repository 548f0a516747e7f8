package recruit

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

// SubmitResult — итог успешной подачи заявки.
type SubmitResult struct {
	Profile   profile.Profile
	Workspace Workspace
	Created   bool
}

// Submit подаёт заявку в рекруты.
//
// Порядок проверок: заявка уже подана (статус или каналы) → нет Steam →
// не настроены роль/категория → участника нет на сервере. Затем выдаётся
// роль рекрута; если выдать не удалось, статус не меняется. После этого
// статус ready, каналы (под замком заявителя) и сводка для штаба, только
// если каналы созданы этим вызовом. Сбой каналов после выдачи роли роль не
// откатывает: такие профили подбирает Repair.
func (s *Service) Submit(ctx context.Context, userID snowflake.ID) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "recruit.Submit",
		trace.WithAttributes(attribute.String("applicant", userID.String())))
	defer span.End()

	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return SubmitResult{}, persistence("load profile", err)
	}
	if p.Status.Terminal() {
		return SubmitResult{}, fail(ErrAlreadyDecided, nil, i18n.Params{"status": string(p.Status)})
	}
	if p.Status.Applied() || p.HasWorkspace() {
		return SubmitResult{}, ErrAlreadyApplied
	}
	if !p.HasSteam() {
		return SubmitResult{}, ErrSteamRequired
	}
	if s.cfg.RecruitRoleID == 0 || s.cfg.RecruitCategoryID == 0 {
		return SubmitResult{}, fail(ErrNotConfigured, errors.New("recruit role or category is not set"), nil)
	}

	member, err := s.dir.ResolveMember(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return SubmitResult{}, fail(ErrMemberNotFound, err, nil)
		}
		return SubmitResult{}, fail(ErrRoleGrant, err, nil)
	}
	if _, err := s.store.SyncFromDirectory(ctx, member.ID, member.Handle, member.DisplayName, member.Administrator); err != nil {
		s.logger.Warn("profile sync on submit failed", "user_id", userID, "err", err)
	}

	if !member.HasRole(s.cfg.RecruitRoleID) {
		if err := s.dir.GrantRole(ctx, userID, s.cfg.RecruitRoleID, "recruit application "+p.RecruitCode()); err != nil {
			return SubmitResult{}, fail(ErrRoleGrant, err, nil)
		}
	}

	if err := s.store.SetRecruitStatus(ctx, userID, profile.StatusReady); err != nil {
		return SubmitResult{}, s.statusError(err, p)
	}
	s.logger.Info("recruit applied", "user_id", userID, "code", p.RecruitCode())

	ws, created, err := s.prov.EnsureWorkspace(ctx, member)
	if err != nil {
		s.logger.Error("recruit role granted but workspace missing",
			"user_id", userID, "code", p.RecruitCode(), "err", err)
		return SubmitResult{Profile: p}, err
	}

	p.Status = profile.StatusReady
	p.TextChannelID, p.VoiceChannelID = ws.TextID, ws.VoiceID
	if created {
		s.postSummary(ctx, p, member, ws)
	}
	return SubmitResult{Profile: p, Workspace: ws, Created: created}, nil
}

// SubmitReply — Submit для кнопки «Стать рекрутом».
func (s *Service) SubmitReply(ctx context.Context, userID snowflake.ID) (Reply, error) {
	res, err := s.Submit(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSteamRequired) {
			lang := s.replyLang(ctx, Interaction{Actor: directory.Member{ID: userID}})
			return Reply{
				Message: directory.Message{
					Content:  s.text(lang, "steam.required", nil),
					Controls: []directory.Control{s.steamControl(lang)},
				},
				Ephemeral: true,
			}, nil
		}
		return Reply{}, err
	}

	lang := s.langOf(res.Profile)
	key := "recruit.workspace_created"
	if !res.Created {
		key = "recruit.workspace_existing"
	}
	return textReply(s.text(lang, key, i18n.Params{
		"role":  mentionRole(s.cfg.RecruitRoleID),
		"text":  mentionChan(res.Workspace.TextID),
		"voice": mentionChan(res.Workspace.VoiceID),
	})), nil
}

// HandleRoleChange реагирует на роль рекрута, выданную в обход кнопки
// (обычно вручную модератором). Работает как подача заявки без проверки
// Steam: pending → ready, каналы создаются идемпотентно, сводка уходит
// только при создании новых каналов. Если Steam не привязан, заявителю
// приходит просьба привязать. Профили done / rejected не трогаются.
func (s *Service) HandleRoleChange(ctx context.Context, before, after directory.Member) error {
	if s.cfg.RecruitRoleID == 0 || after.Bot {
		return nil
	}
	if before.HasRole(s.cfg.RecruitRoleID) || !after.HasRole(s.cfg.RecruitRoleID) {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "recruit.HandleRoleChange",
		trace.WithAttributes(attribute.String("applicant", after.ID.String())))
	defer span.End()

	p, err := s.store.SyncFromDirectory(ctx, after.ID, after.Handle, after.DisplayName, after.Administrator)
	if err != nil {
		return persistence("sync profile", err)
	}
	if p.Status.Terminal() {
		s.logger.Info("recruit role on decided profile ignored", "user_id", after.ID, "status", p.Status)
		return nil
	}

	wasPending := p.Status == profile.StatusPending
	if wasPending {
		if err := s.store.SetRecruitStatus(ctx, after.ID, profile.StatusReady); err != nil {
			return s.statusError(err, p)
		}
		p.Status = profile.StatusReady
		s.logger.Info("recruit role granted externally", "user_id", after.ID, "code", p.RecruitCode())
	}

	ws, created, err := s.prov.EnsureWorkspace(ctx, after)
	if err != nil {
		s.logger.Error("workspace for externally granted recruit failed", "user_id", after.ID, "err", err)
		return err
	}
	p.TextChannelID, p.VoiceChannelID = ws.TextID, ws.VoiceID
	if created {
		s.postSummary(ctx, p, after, ws)
	}

	if wasPending && !p.HasSteam() {
		lang := s.langOf(p)
		msg := directory.Message{
			Content:  s.text(lang, "recruit.auto_granted", nil),
			Controls: []directory.Control{s.steamControl(lang)},
		}
		if _, err := s.dir.SendDirectMessage(ctx, after.ID, msg); err != nil {
			s.logger.Warn("steam request dm failed", "user_id", after.ID, "err", err)
		}
	}
	return nil
}

func (s *Service) statusError(err error, p profile.Profile) error {
	if errors.Is(err, profile.ErrInvalidTransition) {
		return fail(ErrAlreadyApplied, err, nil)
	}
	return persistence(fmt.Sprintf("set status for %s", p.RecruitCode()), err)
}
