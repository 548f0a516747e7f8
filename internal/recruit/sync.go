package recruit

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

// SyncProfile обновляет кэш полей Discord в профиле одного участника.
func (s *Service) SyncProfile(ctx context.Context, userID snowflake.ID) (profile.Profile, error) {
	m, err := s.dir.ResolveMember(ctx, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return profile.Profile{}, fail(ErrUserNotFound, err, nil)
		}
		return profile.Profile{}, fail(ErrPermission, err, nil)
	}
	p, err := s.store.SyncFromDirectory(ctx, m.ID, m.Handle, m.DisplayName, m.Administrator)
	if err != nil {
		return profile.Profile{}, persistence("sync profile", err)
	}
	return p, nil
}

type SyncReport struct {
	Updated int
	Failed  int
}

// SyncAll синхронизирует всех участников, кроме ботов, не более
// SyncWorkers записей одновременно. Сбой одной записи не останавливает
// остальные.
func (s *Service) SyncAll(ctx context.Context) (SyncReport, error) {
	ctx, span := s.tracer.Start(ctx, "recruit.SyncAll")
	defer span.End()

	members, err := s.dir.ListMembers(ctx)
	if err != nil {
		return SyncReport{}, fail(ErrPermission, err, nil)
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SyncWorkers)
	for _, m := range members {
		if m.Bot {
			continue
		}
		g.Go(func() error {
			if _, err := s.store.SyncFromDirectory(gctx, m.ID, m.Handle, m.DisplayName, m.Administrator); err != nil {
				failed.Add(1)
				s.logger.Warn("profile sync failed", "user_id", m.ID, "err", err)
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SyncReport{}, err
	}

	rep := SyncReport{Updated: int(updated.Load()), Failed: int(failed.Load())}
	s.logger.Info("bulk profile sync finished", "members", len(members), "updated", rep.Updated, "failed", rep.Failed)
	return rep, nil
}
