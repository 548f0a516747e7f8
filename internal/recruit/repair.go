package recruit

import (
	"context"
	"errors"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

type RepairReport struct {
	Checked  int
	Repaired int
	Failed   int
}

// Repair проходит по заявкам в статусе ready и досоздаёт каналы там, где
// их нет (роль выдана, а каналы не создались). Для новых каналов
// публикуется карточка. Заявители, ушедшие с сервера, пропускаются.
func (s *Service) Repair(ctx context.Context) (RepairReport, error) {
	ctx, span := s.tracer.Start(ctx, "recruit.Repair")
	defer span.End()

	ready, err := s.store.FindByStatus(ctx, profile.StatusReady)
	if err != nil {
		return RepairReport{}, persistence("list ready recruits", err)
	}

	var rep RepairReport
	for _, p := range ready {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++

		member, err := s.dir.ResolveMember(ctx, p.UserID)
		if err != nil {
			if !errors.Is(err, directory.ErrNotFound) {
				rep.Failed++
				s.logger.Warn("repair: member lookup failed", "user_id", p.UserID, "err", err)
			}
			continue
		}

		ws, created, err := s.prov.EnsureWorkspace(ctx, member)
		if err != nil {
			rep.Failed++
			s.logger.Error("repair: workspace failed", "user_id", p.UserID, "code", p.RecruitCode(), "err", err)
			continue
		}
		if !created {
			continue
		}
		rep.Repaired++
		p.TextChannelID, p.VoiceChannelID = ws.TextID, ws.VoiceID
		s.postSummary(ctx, p, member, ws)
	}

	if rep.Repaired > 0 || rep.Failed > 0 {
		s.logger.Info("repair pass finished", "checked", rep.Checked, "repaired", rep.Repaired, "failed", rep.Failed)
	}
	return rep, nil
}
