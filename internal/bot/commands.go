package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/discord"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/recruit"
)

// сплит с поддержкой кавычек: !recruit "long name"
var reArg = regexp.MustCompile(`"([^"]*)"|(\S+)`)

// уровень доступа к команде
type access int

const (
	accessAnyone access = iota
	accessStaff
	accessManageGuild
	accessAdmin
)

type command struct {
	name    string
	usage   string
	helpKey string
	access  access
	guild   bool
	run     func(ctx context.Context, c *call) error
}

// call — разобранная команда и её автор.
type call struct {
	msg    discord.MessageCreate
	author directory.Member
	args   []string
}

func (bot *RecruitBot) commands() []command {
	return []command{
		{name: "help", run: bot.cmdHelp},
		{name: "onboarding", helpKey: "help.onboarding", run: bot.cmdOnboarding},
		{name: "onboarding_for", usage: "@user", helpKey: "help.onboarding_for", access: accessManageGuild, guild: true, run: bot.cmdOnboardingFor},
		{name: "role_panel", helpKey: "help.role_panel", access: accessAdmin, guild: true, run: bot.cmdRolePanel},
		{name: "reload_roles", helpKey: "help.reload_roles", access: accessAdmin, run: bot.cmdReloadRoles},
		{name: "recruits", usage: "[pending|ready|done|rejected]", helpKey: "help.recruits", access: accessStaff, guild: true, run: bot.cmdRecruits},
		{name: "recruit", usage: "@user", helpKey: "help.recruit", access: accessStaff, guild: true, run: bot.cmdRecruit},
		{name: "sync_profile", usage: "@user", helpKey: "help.sync_profile", access: accessStaff, guild: true, run: bot.cmdSyncProfile},
		{name: "sync_profiles", helpKey: "help.sync_profiles", access: accessStaff, guild: true, run: bot.cmdSyncProfiles},
		{name: "repair_recruits", helpKey: "help.repair_recruits", access: accessStaff, guild: true, run: bot.cmdRepair},
	}
}

func (bot *RecruitBot) HandleCommand(ctx context.Context, m discord.MessageCreate) error {
	fields := splitArgs(strings.TrimSpace(m.Content))
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], bot.prefix))

	var cmd *command
	for _, c := range bot.commands() {
		if c.name == name {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		return bot.cmdError("command.unknown", i18n.Params{"prefix": bot.prefix})
	}
	if cmd.guild && !m.InGuild() {
		return bot.cmdError("command.guild_only", nil)
	}

	author, err := bot.author(ctx, m)
	if err != nil {
		return err
	}
	if !bot.allowed(ctx, cmd.access, author) {
		bot.logger.Info("command denied", "command", cmd.name, "user_id", author.ID)
		return bot.cmdError("command.no_permission", nil)
	}
	return cmd.run(ctx, &call{msg: m, author: author, args: fields[1:]})
}

func (bot *RecruitBot) allowed(ctx context.Context, a access, m directory.Member) bool {
	switch a {
	case accessAdmin:
		return m.Administrator
	case accessManageGuild:
		return m.ManageGuild
	case accessStaff:
		return bot.svc.Authorized(ctx, m)
	}
	return true
}

// author — автор сообщения с правами. В ЛС участника приходится искать на сервере.
func (bot *RecruitBot) author(ctx context.Context, m discord.MessageCreate) (directory.Member, error) {
	if m.Member != nil {
		mm := *m.Member
		u := m.Author
		mm.User = &u
		return bot.platform.Member(ctx, mm)
	}
	member, err := bot.platform.ResolveMember(ctx, m.Author.ID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Member{}, &recruit.Error{Kind: recruit.KindNotFound, Key: "command.user_not_found", Cause: err}
		}
		return directory.Member{}, fmt.Errorf("resolve author: %w", err)
	}
	return member, nil
}

func (bot *RecruitBot) cmdError(key string, params i18n.Params) error {
	return &recruit.Error{Kind: recruit.KindValidation, Key: key, Params: params}
}

func (bot *RecruitBot) errorText(err error) string {
	return bot.svc.ErrorText(bot.defaultLang, err)
}

func (bot *RecruitBot) text(key string, params i18n.Params) string {
	return bot.svc.Catalog().Text(bot.defaultLang, key, params)
}

// target — участник из первого аргумента (упоминание или ID).
func (bot *RecruitBot) target(c *call) (snowflake.ID, error) {
	if len(c.args) > 0 {
		if id, ok := discord.ParseID(c.args[0]); ok {
			return id, nil
		}
	}
	if len(c.msg.Mentions) > 0 {
		return c.msg.Mentions[0].ID, nil
	}
	return 0, bot.cmdError("command.missing_argument", i18n.Params{"param": "member"})
}

// ---------- HELP ----------

func (bot *RecruitBot) cmdHelp(ctx context.Context, c *call) error {
	var rows []string
	for _, cmd := range bot.commands() {
		if cmd.helpKey == "" || !bot.allowed(ctx, cmd.access, c.author) {
			continue
		}
		row := "`" + bot.prefix + cmd.name
		if cmd.usage != "" {
			row += " " + cmd.usage
		}
		rows = append(rows, row+"` — "+bot.text(cmd.helpKey, nil))
	}
	bot.send(ctx, c.msg.ChannelID, directory.Message{Embed: &directory.Embed{
		Title:       bot.text("help.title", nil),
		Description: strings.Join(rows, "\n"),
	}})
	return nil
}

// ---------- ONBOARDING ----------

func (bot *RecruitBot) cmdOnboarding(ctx context.Context, c *call) error {
	key := "onboarding.dm_sent_self"
	if err := bot.svc.SendOnboarding(ctx, c.author); err != nil {
		if !errors.Is(err, recruit.ErrDMBlocked) {
			return err
		}
		key = "onboarding.dm_failed_self"
	}
	bot.say(ctx, c.msg.ChannelID, bot.text(key, nil))
	return nil
}

func (bot *RecruitBot) cmdOnboardingFor(ctx context.Context, c *call) error {
	id, err := bot.target(c)
	if err != nil {
		return err
	}
	member, err := bot.platform.ResolveMember(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return bot.cmdError("command.user_not_found", nil)
		}
		return err
	}
	key := "onboarding.dm_sent_other"
	if err := bot.svc.SendOnboarding(ctx, member); err != nil {
		if !errors.Is(err, recruit.ErrDMBlocked) {
			return err
		}
		key = "onboarding.dm_failed_other"
	}
	bot.say(ctx, c.msg.ChannelID, bot.text(key, i18n.Params{"member": "**" + member.Name() + "**"}))
	return nil
}

// ---------- ROLES ----------

func (bot *RecruitBot) cmdRolePanel(ctx context.Context, c *call) error {
	if _, err := bot.platform.SendChannelMessage(ctx, c.msg.ChannelID, bot.svc.RolePanel(bot.defaultLang)); err != nil {
		return fmt.Errorf("post role panel: %w", err)
	}
	return nil
}

func (bot *RecruitBot) cmdReloadRoles(ctx context.Context, c *call) error {
	if bot.roles == nil {
		return bot.cmdError("command.error", nil)
	}
	if err := bot.roles.Load(); err != nil {
		bot.logger.Error("roles reload failed", "err", err)
		return bot.cmdError("roles.reload_failed", i18n.Params{"error": err.Error()})
	}
	bot.say(ctx, c.msg.ChannelID, bot.text("roles.reloaded", i18n.Params{
		"games":      len(bot.roles.GameRoles()),
		"operations": len(bot.roles.OperationRoles()),
	}))
	return nil
}

// ---------- STAFF ----------

func (bot *RecruitBot) cmdRecruits(ctx context.Context, c *call) error {
	status := ""
	if len(c.args) > 0 {
		status = c.args[0]
	}
	msg, err := bot.svc.ListRecruits(ctx, status, bot.defaultLang)
	if err != nil {
		return err
	}
	bot.send(ctx, c.msg.ChannelID, msg)
	return nil
}

func (bot *RecruitBot) cmdRecruit(ctx context.Context, c *call) error {
	var (
		msg directory.Message
		err error
	)
	if id, idErr := bot.target(c); idErr == nil {
		msg, err = bot.svc.RecruitInfo(ctx, id, "", bot.defaultLang)
	} else if len(c.args) > 0 {
		msg, err = bot.svc.RecruitInfo(ctx, 0, strings.TrimPrefix(c.args[0], "@"), bot.defaultLang)
	} else {
		return idErr
	}
	if err != nil {
		return err
	}
	bot.send(ctx, c.msg.ChannelID, msg)
	return nil
}

func (bot *RecruitBot) cmdSyncProfile(ctx context.Context, c *call) error {
	id, err := bot.target(c)
	if err != nil {
		return err
	}
	p, err := bot.svc.SyncProfile(ctx, id)
	if err != nil {
		return err
	}
	bot.say(ctx, c.msg.ChannelID, bot.text("staff.user_synced", i18n.Params{
		"target":       p.Handle,
		"id":           p.UserID.String(),
		"username":     p.Handle,
		"display_name": p.DisplayName,
		"is_admin":     p.IsAdmin,
	}))
	return nil
}

func (bot *RecruitBot) cmdSyncProfiles(ctx context.Context, c *call) error {
	rep, err := bot.svc.SyncAll(ctx)
	if err != nil {
		return err
	}
	bot.say(ctx, c.msg.ChannelID, bot.text("staff.sync_done", i18n.Params{"updated": rep.Updated, "failed": rep.Failed}))
	return nil
}

func (bot *RecruitBot) cmdRepair(ctx context.Context, c *call) error {
	rep, err := bot.svc.Repair(ctx)
	if err != nil {
		return err
	}
	bot.say(ctx, c.msg.ChannelID, bot.text("staff.repair_done", i18n.Params{
		"checked":  rep.Checked,
		"repaired": rep.Repaired,
		"failed":   rep.Failed,
	}))
	return nil
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[1] != "" {
			out = append(out, m[1])
		} else {
			out = append(out, m[2])
		}
	}
	return out
}
