package recruit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

const (
	maxChannelName = 100
	archivedSuffix = "-archived"
)

// Workspace — пара приватных каналов собеседования одного заявителя.
type Workspace struct {
	TextID  snowflake.ID
	VoiceID snowflake.ID
}

func (w Workspace) Complete() bool { return w.TextID != 0 && w.VoiceID != 0 }

// Provisioner создаёт рабочее пространство заявителя не более одного раза.
type Provisioner struct {
	store  profile.Store
	dir    directory.Gateway
	locks  *keyLock
	logger *slog.Logger
	tracer trace.Tracer

	categoryID snowflake.ID
	staffRoles []snowflake.ID
}

func NewProvisioner(store profile.Store, dir directory.Gateway, categoryID snowflake.ID, staffRoles []snowflake.ID, logger *slog.Logger, tracer trace.Tracer) *Provisioner {
	return &Provisioner{
		store:      store,
		dir:        dir,
		locks:      newKeyLock(),
		logger:     logger,
		tracer:     tracer,
		categoryID: categoryID,
		staffRoles: append([]snowflake.ID(nil), staffRoles...),
	}
}

// EnsureWorkspace возвращает каналы заявителя, создавая недостающие.
// created == true, только если в этом вызове был создан хотя бы один канал.
// Весь цикл перечитать-проверить-создать-записать идёт под замком заявителя.
func (p *Provisioner) EnsureWorkspace(ctx context.Context, member directory.Member) (Workspace, bool, error) {
	ctx, span := p.tracer.Start(ctx, "recruit.EnsureWorkspace",
		trace.WithAttributes(attribute.String("applicant", member.ID.String())))
	defer span.End()

	if p.categoryID == 0 {
		return Workspace{}, false, fail(ErrNotConfigured, errors.New("recruit category is not set"), nil)
	}

	unlock, err := p.locks.Lock(ctx, member.ID)
	if err != nil {
		return Workspace{}, false, err
	}
	defer unlock()

	prof, err := p.store.GetOrCreate(ctx, member.ID)
	if err != nil {
		return Workspace{}, false, persistence("load profile", err)
	}

	ws := Workspace{}
	if ws.TextID, err = p.live(ctx, prof.TextChannelID); err != nil {
		return Workspace{}, false, err
	}
	if ws.VoiceID, err = p.live(ctx, prof.VoiceChannelID); err != nil {
		return Workspace{}, false, err
	}
	if ws.Complete() {
		return ws, false, nil
	}

	name := WorkspaceName(member.Handle, prof.RecruitCode())
	var createdText, createdVoice snowflake.ID
	if ws.TextID == 0 {
		ch, err := p.create(ctx, member, name, directory.ChannelText, prof.RecruitCode())
		if err != nil {
			return Workspace{}, false, err
		}
		ws.TextID, createdText = ch.ID, ch.ID
	}
	if ws.VoiceID == 0 {
		ch, err := p.create(ctx, member, name, directory.ChannelVoice, prof.RecruitCode())
		if err != nil {
			p.undo(ctx, createdText)
			return Workspace{}, false, err
		}
		ws.VoiceID, createdVoice = ch.ID, ch.ID
	}

	if err := p.store.SetChannels(ctx, member.ID, ws.TextID, ws.VoiceID); err != nil {
		p.logger.Error("workspace created but not recorded",
			"user_id", member.ID, "text_id", ws.TextID, "voice_id", ws.VoiceID, "err", err)
		p.undo(ctx, createdText, createdVoice)
		return Workspace{}, false, persistence("save channels", err)
	}

	p.logger.Info("recruit workspace created",
		"user_id", member.ID, "code", prof.RecruitCode(), "text_id", ws.TextID, "voice_id", ws.VoiceID)
	return ws, true, nil
}

// live возвращает id, если канал существует; 0 — если его нет или id пуст.
func (p *Provisioner) live(ctx context.Context, id snowflake.ID) (snowflake.ID, error) {
	if id == 0 {
		return 0, nil
	}
	if _, err := p.dir.ResolveChannel(ctx, id); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			p.logger.Warn("recorded recruit channel is gone", "channel_id", id)
			return 0, nil
		}
		return 0, fmt.Errorf("resolve channel %s: %w", id, err)
	}
	return id, nil
}

func (p *Provisioner) create(ctx context.Context, member directory.Member, name string, kind directory.ChannelKind, code string) (directory.Channel, error) {
	ch, err := p.dir.CreateScopedChannel(ctx, directory.ChannelSpec{
		Name:       name,
		Kind:       kind,
		CategoryID: p.categoryID,
		Topic:      "Recruit " + code,
		AllowUsers: []snowflake.ID{member.ID},
		AllowRoles: p.staffRoles,
		Reason:     "recruit workspace " + code,
	})
	if err != nil {
		p.logger.Error("create recruit channel failed", "user_id", member.ID, "kind", kind.String(), "err", err)
		return directory.Channel{}, fail(ErrWorkspaceFailed, err, nil)
	}
	return ch, nil
}

// undo удаляет каналы, созданные в этом вызове (best-effort).
func (p *Provisioner) undo(ctx context.Context, ids ...snowflake.ID) {
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if err := p.dir.DeleteChannel(ctx, id, "recruit workspace rollback"); err != nil {
			p.logger.Warn("rollback of half-created workspace failed", "channel_id", id, "err", err)
		}
	}
}

// WorkspaceName — recruit-<handle>-<code> в нижнем регистре, только буквы,
// цифры, '-' и '_', не длиннее 100 символов.
func WorkspaceName(handle, code string) string {
	base := "recruit"
	if h := sanitizeName(handle); h != "" {
		base += "-" + h
	}
	base += "-" + sanitizeName(code)
	return truncateRunes(base, maxChannelName)
}

// ArchivedName добавляет суффикс -archived один раз, укладываясь в 100 символов.
func ArchivedName(name string) string {
	if strings.HasSuffix(name, archivedSuffix) {
		return name
	}
	return truncateRunes(name, maxChannelName-len(archivedSuffix)) + archivedSuffix
}

func sanitizeName(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n]), "-")
}
