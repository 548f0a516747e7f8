package recruit

import (
	"context"

	"github.com/EgorLis/Recruitbot/internal/directory"
)

// Authorized — может ли actor решать по заявкам: право администратора или
// управления сервером, роль из набора штаба, либо флаг is_admin в профиле
// (кэш последней синхронизации).
func (s *Service) Authorized(ctx context.Context, actor directory.Member) bool {
	if actor.Administrator || actor.ManageGuild {
		return true
	}
	if actor.HasAnyRole(s.cfg.StaffRoleIDs) {
		return true
	}
	p, err := s.store.GetOrCreate(ctx, actor.ID)
	if err != nil {
		s.logger.Warn("authorization profile lookup failed", "actor", actor.ID, "err", err)
		return false
	}
	return p.IsAdmin
}
