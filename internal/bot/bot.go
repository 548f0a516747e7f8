package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/clock"
	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/discord"
	"github.com/EgorLis/Recruitbot/internal/recruit"
)

// Platform — то, что боту нужно от Discord сверх directory.Gateway.
type Platform interface {
	directory.Gateway
	Member(ctx context.Context, m discord.Member) (directory.Member, error)
	Respond(ctx context.Context, in discord.Interaction, cb discord.Callback) error
	EditResponse(ctx context.Context, in discord.Interaction, msg directory.Message) error
	InvalidateRoles()
}

type Options struct {
	GuildID        snowflake.ID
	Prefix         string
	DefaultLang    string
	RepairInterval time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger
}

type RecruitBot struct {
	svc      *recruit.Service
	platform Platform
	session  *discord.Session
	roles    *ConfigStore

	guildID     snowflake.ID
	prefix      string
	defaultLang string
	clock       clock.Clock
	logger      *slog.Logger

	// роли участников на момент последнего события: для GUILD_MEMBER_UPDATE
	// Discord присылает только новое состояние
	rolesCache *rolesCache

	stopCh chan struct{}
	errCh  chan error
	wg     sync.WaitGroup
	mu     sync.Mutex

	// чтобы не перечитывать участников при серии быстрых реконнектов
	reinitMu   sync.Mutex
	lastReinit time.Time

	// repair-loop
	rpMu      sync.Mutex
	rpRunning bool
	rpCancel  context.CancelFunc
	rpEvery   time.Duration
}

func New(svc *recruit.Service, platform Platform, roles *ConfigStore, opts Options) *RecruitBot {
	if opts.Prefix == "" {
		opts.Prefix = "!"
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &RecruitBot{
		svc:         svc,
		platform:    platform,
		roles:       roles,
		guildID:     opts.GuildID,
		prefix:      opts.Prefix,
		defaultLang: svc.Catalog().Normalize(opts.DefaultLang),
		clock:       opts.Clock,
		logger:      opts.Logger,
		rolesCache:  newRolesCache(),
		rpEvery:     opts.RepairInterval,
	}
}

// SetSession подключает gateway: события сессии идут в обработчики бота.
func (bot *RecruitBot) SetSession(s *discord.Session) {
	bot.session = s

	bot.session.OnConnected = func() { bot.logger.Info("gateway connected") }
	bot.session.OnDisconnected = func() { bot.logger.Warn("gateway disconnected") }
	bot.session.OnError = func(err error) { bot.logger.Warn("gateway error", "err", err) }

	// КЛЮЧЕВОЕ: после READY (первое подключение или новый Identify) кэш ролей
	// перечитывается целиком — за время обрыва события могли потеряться
	bot.session.OnReady = func(discord.Ready) { go bot.reinitMembers() }
	bot.session.OnRolesChanged = bot.platform.InvalidateRoles

	bot.session.OnMemberAdd = func(ev discord.MemberEvent) {
		bot.HandleMemberAdd(context.Background(), ev)
	}
	bot.session.OnMemberUpdate = func(ev discord.MemberEvent) {
		bot.HandleMemberUpdate(context.Background(), ev)
	}
	bot.session.OnMemberRemove = func(ev discord.MemberRemove) {
		if ev.GuildID == bot.guildID {
			bot.rolesCache.forget(ev.User.ID)
		}
	}
	bot.session.OnMessage = func(m discord.MessageCreate) {
		bot.HandleMessage(context.Background(), m)
	}
	bot.session.OnInteraction = func(in discord.Interaction) {
		bot.HandleInteraction(context.Background(), in)
	}
}

func (bot *RecruitBot) Start() error {
	if bot == nil {
		return errors.New("бот не инициализирован")
	}
	if bot.session == nil {
		return errors.New("gateway не инициализирован")
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.stopCh != nil {
		return errors.New("уже запущен")
	}
	if bot.rpEvery > 0 {
		if err := bot.StartRepairLoop(bot.rpEvery); err != nil {
			return err
		}
	}
	bot.stopCh = make(chan struct{})
	bot.errCh = make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())

	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		if err := bot.session.Run(ctx); err != nil {
			bot.logger.Error("gateway stopped", "err", err)
			bot.errCh <- err
		}
	}()

	// сторож для остановки
	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		<-bot.stopCh
		bot.StopRepairLoop()
		cancel()
	}()

	return nil
}

// Err — фатальная ошибка gateway (неверный токен, запрещённые intents).
func (bot *RecruitBot) Err() <-chan error {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	return bot.errCh
}

func (bot *RecruitBot) Stop() {
	bot.mu.Lock()
	ch := bot.stopCh
	bot.stopCh = nil
	bot.mu.Unlock()

	if ch != nil {
		close(ch)     // безопасно: повторный Stop() ничего не делает
		bot.wg.Wait() // дождёмся остановки фоновых горутин
	}
}

// reinitMembers заново заполняет кэш ролей всех участников.
func (bot *RecruitBot) reinitMembers() {
	// антидребезг: несколько READY подряд — один проход
	bot.reinitMu.Lock()
	now := bot.clock.Now()
	if !bot.lastReinit.IsZero() && now.Sub(bot.lastReinit) < 2*time.Second {
		bot.reinitMu.Unlock()
		return
	}
	bot.lastReinit = now
	bot.reinitMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	members, err := bot.platform.ListMembers(ctx)
	if err != nil {
		bot.logger.Warn("member list for role cache failed", "err", err)
		return
	}
	bot.rolesCache.prime(members)
	bot.logger.Info("role cache primed", "members", len(members))
}

func (bot *RecruitBot) ourGuild(id *snowflake.ID) bool {
	return id != nil && *id == bot.guildID
}

// HandleMemberAdd — новый участник: онбординг в ЛС.
func (bot *RecruitBot) HandleMemberAdd(ctx context.Context, ev discord.MemberEvent) {
	if ev.GuildID != bot.guildID {
		return
	}
	m, err := bot.platform.Member(ctx, ev.Member)
	if err != nil {
		bot.logger.Warn("member join: permissions lookup failed", "err", err)
		m = discord.ToMember(ev.Member, nil)
	}
	bot.rolesCache.remember(m.ID, m.RoleIDs)
	if m.Bot {
		return
	}
	bot.logger.Info("member joined", "user_id", m.ID, "handle", m.Handle)
	if err := bot.svc.SendOnboarding(ctx, m); err != nil {
		bot.logger.Warn("onboarding on join failed", "user_id", m.ID, "err", err)
	}
}

// HandleMemberUpdate сравнивает роли с кэшем и передаёт изменение в recruit.
func (bot *RecruitBot) HandleMemberUpdate(ctx context.Context, ev discord.MemberEvent) {
	if ev.GuildID != bot.guildID {
		return
	}
	after, err := bot.platform.Member(ctx, ev.Member)
	if err != nil {
		bot.logger.Warn("member update: permissions lookup failed", "err", err)
		after = discord.ToMember(ev.Member, nil)
	}
	// промах кэша — «до» без ролей; обработчик идемпотентен
	prev, _ := bot.rolesCache.remember(after.ID, after.RoleIDs)
	before := directory.Member{ID: after.ID, RoleIDs: prev}
	if err := bot.svc.HandleRoleChange(ctx, before, after); err != nil {
		bot.logger.Error("role change handling failed", "user_id", after.ID, "err", err)
	}
}

// HandleInteraction выполняет нажатие кнопки или отправку формы.
func (bot *RecruitBot) HandleInteraction(ctx context.Context, in discord.Interaction) {
	if !in.IsComponent() {
		return
	}
	if in.InGuild() && !bot.ourGuild(in.GuildID) {
		return
	}
	action, err := recruit.DecodeAction(in.CustomID())
	if errors.Is(err, recruit.ErrNotAction) {
		return // чужая кнопка
	}

	actor := bot.actor(in)
	if err != nil {
		bot.logger.Warn("bad action tag", "custom_id", in.CustomID(), "actor", actor.ID, "err", err)
		lang := bot.svc.Catalog().Normalize(in.Locale)
		bot.respond(ctx, in, recruit.Reply{Message: directory.Message{Content: bot.svc.ErrorText(lang, err)}, Ephemeral: true})
		return
	}

	channelID, messageID := in.MessageRef()
	ri := recruit.Interaction{
		Actor:   actor,
		InGuild: in.InGuild(),
		Action:  action,
		Message: directory.MessageRef{ChannelID: channelID, MessageID: messageID},
		Locale:  in.Locale,
		Values:  in.Values(),
	}

	update, deferred := action.Kind.Deferred()
	if !deferred {
		bot.respond(ctx, in, bot.svc.HandleAction(ctx, ri))
		return
	}
	// без подтверждения получения действие не выполняется
	ack := discord.Callback{Deferred: true, Update: update, Ephemeral: true}
	if err := bot.platform.Respond(ctx, in, ack); err != nil {
		bot.logger.Error("interaction ack failed", "actor", actor.ID, "action", action.Kind.String(), "err", err)
		return
	}
	reply := bot.svc.HandleAction(ctx, ri)
	if reply.Modal != nil {
		bot.logger.Error("modal after deferred ack", "action", action.Kind.String())
		return
	}
	if err := bot.platform.EditResponse(ctx, in, reply.Message); err != nil {
		bot.logger.Error("interaction follow-up failed", "actor", actor.ID, "action", action.Kind.String(), "err", err)
	}
}

func (bot *RecruitBot) respond(ctx context.Context, in discord.Interaction, reply recruit.Reply) {
	cb := discord.Callback{Modal: reply.Modal, Update: reply.Update, Ephemeral: reply.Ephemeral}
	if reply.Modal == nil {
		cb.Message = &reply.Message
	}
	if err := bot.platform.Respond(ctx, in, cb); err != nil {
		bot.logger.Error("interaction response failed", "actor", in.Actor().ID, "err", err)
	}
}

// actor: на сервере Discord присылает участника вместе с правами, в ЛС — только пользователя.
func (bot *RecruitBot) actor(in discord.Interaction) directory.Member {
	if in.Member != nil {
		m := *in.Member
		if m.User == nil {
			u := in.Actor()
			m.User = &u
		}
		return discord.ToMember(m, nil)
	}
	u := in.Actor()
	return directory.Member{ID: u.ID, Handle: u.Username, DisplayName: u.GlobalName, Bot: u.Bot}
}

// HandleMessage разбирает команды с префиксом.
func (bot *RecruitBot) HandleMessage(ctx context.Context, m discord.MessageCreate) {
	if m.Author.Bot {
		return
	}
	text := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(text, bot.prefix) {
		return
	}
	if m.InGuild() && !bot.ourGuild(m.GuildID) {
		return
	}
	bot.logger.Info("command", "user_id", m.Author.ID, "text", text)
	if err := bot.HandleCommand(ctx, m); err != nil {
		bot.say(ctx, m.ChannelID, bot.errorText(err))
	}
}

func (bot *RecruitBot) say(ctx context.Context, channelID snowflake.ID, text string) {
	bot.send(ctx, channelID, directory.Message{Content: text})
}

func (bot *RecruitBot) send(ctx context.Context, channelID snowflake.ID, msg directory.Message) {
	if _, err := bot.platform.SendChannelMessage(ctx, channelID, msg); err != nil {
		bot.logger.Warn("command reply failed", "channel_id", channelID, "err", err)
	}
}
