// Package recruit — жизненный цикл заявки рекрута: онбординг, привязка
// Steam, подача заявки, каналы собеседования и решение модераторов.
//
// Граница с платформой — directory.Gateway, хранилище — profile.Store.
// Кнопки несут только тег действия (Action); любое решение принимается
// по свежему профилю из хранилища.
package recruit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/EgorLis/Recruitbot/internal/clock"
	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
	"github.com/EgorLis/Recruitbot/internal/steamapi"
)

type Config struct {
	GuildID           snowflake.ID
	RecruitRoleID     snowflake.ID
	MemberRoleID      snowflake.ID
	RecruitCategoryID snowflake.ID
	ArchiveCategoryID snowflake.ID
	PingRoleID        snowflake.ID
	FallbackChannelID snowflake.ID
	StaffRoleIDs      []snowflake.ID

	DefaultLang   string
	CommandPrefix string
	// Welcome — приветствие по языку поверх текста из каталога.
	Welcome map[string]string

	ConfirmTimeout time.Duration
	SyncWorkers    int
}

// RoleOption — самоназначаемая роль (игровая или для операций).
type RoleOption struct {
	ID           snowflake.ID
	Emoji        string
	Labels       map[string]string
	Descriptions map[string]string
}

// Label — подпись на языке lang, иначе на def, иначе любая.
func (r RoleOption) Label(lang, def string) string {
	return pickText(r.Labels, lang, def)
}

func (r RoleOption) Description(lang, def string) string {
	return pickText(r.Descriptions, lang, def)
}

func pickText(m map[string]string, lang, def string) string {
	if v := m[lang]; v != "" {
		return v
	}
	if v := m[def]; v != "" {
		return v
	}
	for _, v := range m {
		if v != "" {
			return v
		}
	}
	return ""
}

// RoleSource отдаёт текущие списки самоназначаемых ролей.
type RoleSource interface {
	GameRoles() []RoleOption
	OperationRoles() []RoleOption
}

// SteamLookup — проверка существования аккаунта Steam; может отсутствовать.
type SteamLookup interface {
	PlayerSummary(ctx context.Context, steamID string) (steamapi.Player, error)
}

type Deps struct {
	Store     profile.Store
	Directory directory.Gateway
	Catalog   *i18n.Catalog
	Roles     RoleSource
	Steam     SteamLookup
	Clock     clock.Clock
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

type Service struct {
	cfg      Config
	store    profile.Store
	dir      directory.Gateway
	catalog  *i18n.Catalog
	roles    RoleSource
	steam    SteamLookup
	clock    clock.Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	prov     *Provisioner
	confirms *confirmations
}

func NewService(cfg Config, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("recruit")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Roles == nil {
		deps.Roles = staticRoles{}
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = time.Minute
	}
	if cfg.SyncWorkers < 1 {
		cfg.SyncWorkers = 1
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	cfg.DefaultLang = deps.Catalog.Normalize(cfg.DefaultLang)

	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		dir:      deps.Directory,
		catalog:  deps.Catalog,
		roles:    deps.Roles,
		steam:    deps.Steam,
		clock:    deps.Clock,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		prov:     NewProvisioner(deps.Store, deps.Directory, cfg.RecruitCategoryID, cfg.StaffRoleIDs, deps.Logger, deps.Tracer),
		confirms: newConfirmations(deps.Clock, cfg.ConfirmTimeout),
	}
}

type staticRoles struct {
	games, operations []RoleOption
}

func (s staticRoles) GameRoles() []RoleOption      { return s.games }
func (s staticRoles) OperationRoles() []RoleOption { return s.operations }

// StaticRoles — неизменяемый RoleSource.
func StaticRoles(games, operations []RoleOption) RoleSource {
	return staticRoles{games: games, operations: operations}
}

func (s *Service) Provisioner() *Provisioner { return s.prov }

func (s *Service) Catalog() *i18n.Catalog { return s.catalog }

func (s *Service) text(lang, key string, params i18n.Params) string {
	return s.catalog.Text(lang, key, params)
}

// langOf — язык профиля или язык по умолчанию.
func (s *Service) langOf(p profile.Profile) string {
	return s.catalog.Normalize(p.LanguageOr(s.cfg.DefaultLang))
}

// Reply — ответ на нажатие кнопки или отправку формы.
type Reply struct {
	Message directory.Message
	Modal   *directory.Modal
	// Update — заменить сообщение, на котором была кнопка.
	Update    bool
	Ephemeral bool
}

func textReply(content string) Reply {
	return Reply{Message: directory.Message{Content: content}, Ephemeral: true}
}

// Interaction — нажатие кнопки или отправка модального окна.
type Interaction struct {
	Actor   directory.Member
	InGuild bool
	Action  Action
	Message directory.MessageRef
	Locale  string
	Values  map[string]string
}

// HandleAction выполняет действие кнопки и всегда возвращает ответ для
// пользователя. Ошибки переводятся в текст и пишутся в лог.
func (s *Service) HandleAction(ctx context.Context, in Interaction) Reply {
	ctx, span := s.tracer.Start(ctx, "recruit.HandleAction")
	defer span.End()

	reply, err := s.dispatch(ctx, in)
	if err == nil {
		return reply
	}

	s.logFailure(err, "action failed", "action", in.Action.Kind.String(), "actor", in.Actor.ID)
	if reply.Message.Content != "" {
		// обработчик уже оформил ответ с ошибкой
		return reply
	}
	lang := s.replyLang(ctx, in)
	key, params := describe(err)
	return textReply(s.text(lang, key, params))
}

func (s *Service) dispatch(ctx context.Context, in Interaction) (Reply, error) {
	a := in.Action
	switch a.Kind {
	case ActLanguage:
		return s.ChooseLanguage(ctx, in.Actor.ID, a.Lang)
	case ActGamesMenu:
		return s.GamesMenu(ctx, in.Actor.ID)
	case ActOperationsMenu:
		return s.OperationsMenu(ctx, in.Actor.ID)
	case ActToggleGame:
		return s.ToggleRole(ctx, in.Actor.ID, a.Role, false)
	case ActToggleOperation:
		return s.ToggleRole(ctx, in.Actor.ID, a.Role, true)
	case ActSteamPrompt:
		return s.SteamPrompt(ctx, in.Actor.ID)
	case ActSteamSubmit:
		if a.Target != 0 && a.Target != in.Actor.ID {
			return Reply{}, ErrWrongUser
		}
		return s.LinkSteamReply(ctx, in.Actor.ID, in.Values[SteamInputID])
	case ActRegister:
		return s.SubmitReply(ctx, in.Actor.ID)
	case ActApprove:
		return s.RequestDecision(ctx, in.Actor, a.Target, DecisionApprove, in.Message, in.Locale)
	case ActReject:
		return s.RequestDecision(ctx, in.Actor, a.Target, DecisionReject, in.Message, in.Locale)
	case ActConfirmYes:
		return s.Confirm(ctx, in.Actor, a.Token, true, in.Locale)
	case ActConfirmNo:
		return s.Confirm(ctx, in.Actor, a.Token, false, in.Locale)
	}
	return Reply{}, fail(ErrValidation, errors.New("unsupported action "+a.Kind.String()), nil)
}

// replyLang: для модераторских кнопок — локаль клиента, иначе язык профиля.
func (s *Service) replyLang(ctx context.Context, in Interaction) string {
	switch in.Action.Kind {
	case ActApprove, ActReject, ActConfirmYes, ActConfirmNo:
		return s.catalog.Normalize(in.Locale)
	}
	p, err := s.store.GetOrCreate(ctx, in.Actor.ID)
	if err != nil {
		return s.cfg.DefaultLang
	}
	return s.langOf(p)
}

// logFailure: ожидаемые отказы — Info, всё остальное — Error.
func (s *Service) logFailure(err error, msg string, args ...any) {
	args = append(args, "err", err)
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindValidation, KindPrecondition, KindAuthorization:
			s.logger.Info(msg, args...)
			return
		case KindNotFound, KindPermission:
			s.logger.Warn(msg, args...)
			return
		}
	}
	s.logger.Error(msg, args...)
}
