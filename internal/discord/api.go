package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
)

const (
	guildCacheTTL = 5 * time.Minute
	membersPage   = 1000
)

// Directory — directory.Gateway поверх REST для одного сервера.
type Directory struct {
	rest    *REST
	guildID snowflake.ID

	mu       sync.Mutex
	guild    guild
	rolePerm map[snowflake.ID]Perms
	loadedAt time.Time

	dmMu sync.Mutex
	dms  map[snowflake.ID]snowflake.ID // user -> канал ЛС
}

var _ directory.Gateway = (*Directory)(nil)

func NewDirectory(rest *REST, guildID snowflake.ID) *Directory {
	return &Directory{rest: rest, guildID: guildID, dms: map[snowflake.ID]snowflake.ID{}}
}

// InvalidateRoles сбрасывает кэш ролей сервера (после GUILD_ROLE_*).
func (d *Directory) InvalidateRoles() {
	d.mu.Lock()
	d.loadedAt = time.Time{}
	d.mu.Unlock()
}

func (d *Directory) loadGuild(ctx context.Context) (guild, map[snowflake.ID]Perms, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loadedAt.IsZero() && time.Since(d.loadedAt) < guildCacheTTL {
		return d.guild, d.rolePerm, nil
	}
	var g guild
	if err := d.rest.do(ctx, http.MethodGet, "/guilds/"+d.guildID.String(), "", nil, &g); err != nil {
		return guild{}, nil, fmt.Errorf("load guild: %w", err)
	}
	perms := make(map[snowflake.ID]Perms, len(g.Roles))
	for _, r := range g.Roles {
		perms[r.ID] = r.Permissions
	}
	d.guild, d.rolePerm, d.loadedAt = g, perms, time.Now()
	return g, perms, nil
}

// basePermissions — права участника на уровне сервера: @everyone плюс
// все его роли; владелец и Administrator получают всё.
func basePermissions(g guild, rolePerm map[snowflake.ID]Perms, userID snowflake.ID, roles []snowflake.ID) Perms {
	if userID == g.OwnerID {
		return Perms(-1)
	}
	p := rolePerm[g.ID] // id роли @everyone совпадает с id сервера
	for _, r := range roles {
		p |= rolePerm[r]
	}
	if p.Has(PermAdministrator) {
		return Perms(-1)
	}
	return p
}

// ToMember переводит участника из события или ответа REST. perms, если
// задан, берётся как есть (его присылает Discord во взаимодействиях).
func ToMember(m Member, perms *Perms) directory.Member {
	out := directory.Member{RoleIDs: append([]snowflake.ID(nil), m.Roles...)}
	if m.User != nil {
		out.ID = m.User.ID
		out.Handle = m.User.Username
		out.Bot = m.User.Bot
		out.DisplayName = m.User.GlobalName
	}
	if m.Nick != "" {
		out.DisplayName = m.Nick
	}
	if perms == nil {
		perms = m.Permissions
	}
	if perms != nil {
		out.Administrator = perms.Has(PermAdministrator)
		out.ManageGuild = out.Administrator || perms.Has(PermManageGuild)
	}
	return out
}

func (d *Directory) withPermissions(ctx context.Context, m Member) (directory.Member, error) {
	g, rolePerm, err := d.loadGuild(ctx)
	if err != nil {
		return directory.Member{}, err
	}
	var id snowflake.ID
	if m.User != nil {
		id = m.User.ID
	}
	p := basePermissions(g, rolePerm, id, m.Roles)
	return ToMember(m, &p), nil
}

// Member — участник из события gateway с вычисленными правами.
func (d *Directory) Member(ctx context.Context, m Member) (directory.Member, error) {
	return d.withPermissions(ctx, m)
}

func (d *Directory) ResolveMember(ctx context.Context, userID snowflake.ID) (directory.Member, error) {
	var m Member
	path := fmt.Sprintf("/guilds/%s/members/%s", d.guildID, userID)
	if err := d.rest.do(ctx, http.MethodGet, path, "", nil, &m); err != nil {
		return directory.Member{}, fmt.Errorf("resolve member %s: %w", userID, err)
	}
	return d.withPermissions(ctx, m)
}

func (d *Directory) ListMembers(ctx context.Context) ([]directory.Member, error) {
	g, rolePerm, err := d.loadGuild(ctx)
	if err != nil {
		return nil, err
	}
	var (
		out   []directory.Member
		after snowflake.ID
	)
	for {
		var page []Member
		path := fmt.Sprintf("/guilds/%s/members?limit=%d&after=%s", d.guildID, membersPage, after)
		if err := d.rest.do(ctx, http.MethodGet, path, "", nil, &page); err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			p := basePermissions(g, rolePerm, m.User.ID, m.Roles)
			out = append(out, ToMember(m, &p))
			after = max(after, m.User.ID)
		}
		if len(page) < membersPage {
			return out, nil
		}
	}
}

func (d *Directory) GrantRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", d.guildID, userID, roleID)
	if err := d.rest.do(ctx, http.MethodPut, path, reason, nil, nil); err != nil {
		return fmt.Errorf("grant role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

func (d *Directory) RevokeRole(ctx context.Context, userID, roleID snowflake.ID, reason string) error {
	path := fmt.Sprintf("/guilds/%s/members/%s/roles/%s", d.guildID, userID, roleID)
	if err := d.rest.do(ctx, http.MethodDelete, path, reason, nil, nil); err != nil {
		return fmt.Errorf("revoke role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// CreateScopedChannel создаёт канал, закрытый для @everyone и открытый
// для AllowUsers и AllowRoles.
func (d *Directory) CreateScopedChannel(ctx context.Context, spec directory.ChannelSpec) (directory.Channel, error) {
	allow := PermViewChannel | PermSendMessages
	typ := channelTypeText
	topic := spec.Topic
	if spec.Kind == directory.ChannelVoice {
		allow = PermViewChannel | PermConnect
		typ = channelTypeVoice
		topic = ""
	}

	ows := []overwrite{{ID: d.guildID, Type: overwriteRole, Deny: Perms(PermViewChannel)}}
	for _, r := range spec.AllowRoles {
		ows = append(ows, overwrite{ID: r, Type: overwriteRole, Allow: Perms(allow)})
	}
	for _, u := range spec.AllowUsers {
		ows = append(ows, overwrite{ID: u, Type: overwriteMember, Allow: Perms(allow)})
	}

	var ch channel
	path := "/guilds/" + d.guildID.String() + "/channels"
	body := createChannel{Name: spec.Name, Type: typ, ParentID: spec.CategoryID, Topic: topic, Overwrites: ows}
	if err := d.rest.do(ctx, http.MethodPost, path, spec.Reason, body, &ch); err != nil {
		return directory.Channel{}, fmt.Errorf("create %s channel %q: %w", spec.Kind, spec.Name, err)
	}
	return toChannel(ch), nil
}

func toChannel(ch channel) directory.Channel {
	out := directory.Channel{ID: ch.ID, Name: ch.Name, Kind: directory.ChannelText}
	if ch.Type == channelTypeVoice {
		out.Kind = directory.ChannelVoice
	}
	if ch.ParentID != nil {
		out.CategoryID = *ch.ParentID
	}
	return out
}

func (d *Directory) ResolveChannel(ctx context.Context, channelID snowflake.ID) (directory.Channel, error) {
	var ch channel
	if err := d.rest.do(ctx, http.MethodGet, "/channels/"+channelID.String(), "", nil, &ch); err != nil {
		return directory.Channel{}, fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	return toChannel(ch), nil
}

func (d *Directory) DeleteChannel(ctx context.Context, channelID snowflake.ID, reason string) error {
	if err := d.rest.do(ctx, http.MethodDelete, "/channels/"+channelID.String(), reason, nil, nil); err != nil {
		return fmt.Errorf("delete channel %s: %w", channelID, err)
	}
	return nil
}

// ArchiveChannel переименовывает канал, переносит его в категорию (если
// задана) и запрещает участнику просмотр.
func (d *Directory) ArchiveChannel(ctx context.Context, spec directory.ArchiveSpec) error {
	mod := modifyChannel{Name: spec.Name}
	if spec.CategoryID != 0 {
		mod.ParentID = &spec.CategoryID
	}
	path := "/channels/" + spec.ChannelID.String()
	if err := d.rest.do(ctx, http.MethodPatch, path, spec.Reason, mod, nil); err != nil {
		return fmt.Errorf("archive channel %s: %w", spec.ChannelID, err)
	}
	if spec.DenyUser == 0 {
		return nil
	}
	ow := overwrite{ID: spec.DenyUser, Type: overwriteMember, Deny: Perms(PermViewChannel)}
	if err := d.rest.do(ctx, http.MethodPut, path+"/permissions/"+spec.DenyUser.String(), spec.Reason, ow, nil); err != nil {
		return fmt.Errorf("deny %s in archived channel %s: %w", spec.DenyUser, spec.ChannelID, err)
	}
	return nil
}

func (d *Directory) dmChannel(ctx context.Context, userID snowflake.ID) (snowflake.ID, error) {
	d.dmMu.Lock()
	id, ok := d.dms[userID]
	d.dmMu.Unlock()
	if ok {
		return id, nil
	}
	var ch channel
	body := map[string]snowflake.ID{"recipient_id": userID}
	if err := d.rest.do(ctx, http.MethodPost, "/users/@me/channels", "", body, &ch); err != nil {
		return 0, err
	}
	d.dmMu.Lock()
	d.dms[userID] = ch.ID
	d.dmMu.Unlock()
	return ch.ID, nil
}

func (d *Directory) SendDirectMessage(ctx context.Context, userID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	chID, err := d.dmChannel(ctx, userID)
	if err != nil {
		return directory.MessageRef{}, fmt.Errorf("open dm with %s: %w", userID, err)
	}
	ref, err := d.SendChannelMessage(ctx, chID, msg)
	if err != nil {
		return directory.MessageRef{}, fmt.Errorf("dm %s: %w", userID, err)
	}
	return ref, nil
}

func (d *Directory) SendChannelMessage(ctx context.Context, channelID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	var out message
	path := "/channels/" + channelID.String() + "/messages"
	if err := d.rest.do(ctx, http.MethodPost, path, "", renderMessage(msg), &out); err != nil {
		return directory.MessageRef{}, fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return directory.MessageRef{ChannelID: channelID, MessageID: out.ID}, nil
}

// DisableControls выключает все кнопки под сообщением.
func (d *Directory) DisableControls(ctx context.Context, ref directory.MessageRef) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", ref.ChannelID, ref.MessageID)
	var cur message
	if err := d.rest.do(ctx, http.MethodGet, path, "", nil, &cur); err != nil {
		return fmt.Errorf("load message %s: %w", ref.MessageID, err)
	}
	rows, changed := disableAll(cur.Components)
	if !changed {
		return nil
	}
	patch := struct {
		Components []component `json:"components"`
	}{rows}
	if err := d.rest.do(ctx, http.MethodPatch, path, "", patch, nil); err != nil {
		return fmt.Errorf("disable controls on %s: %w", ref.MessageID, err)
	}
	return nil
}

// Callback — ответ на взаимодействие: сообщение (новое или замена
// исходного), модальное окно или отложенный ответ (Deferred), который
// потом дописывает EditResponse.
type Callback struct {
	Message   *directory.Message
	Modal     *directory.Modal
	Deferred  bool
	Update    bool
	Ephemeral bool
}

// Respond отвечает на взаимодействие. Ответ нужен в течение 3 секунд.
func (d *Directory) Respond(ctx context.Context, in Interaction, cb Callback) error {
	var resp interactionResponse
	switch {
	case cb.Deferred:
		resp.Type = callbackDeferredMessage
		if cb.Update && in.Message != nil {
			resp.Type = callbackDeferredUpdate
		} else if cb.Ephemeral && in.InGuild() {
			resp.Data = deferredData{Flags: flagEphemeral}
		}
	case cb.Modal != nil:
		resp = interactionResponse{Type: callbackModal, Data: renderModal(*cb.Modal)}
	case cb.Message != nil && cb.Update && in.Message != nil:
		resp = interactionResponse{Type: callbackUpdate, Data: renderEdit(*cb.Message)}
	case cb.Message != nil:
		msg := renderMessage(*cb.Message)
		resp.Type = callbackMessage
		if cb.Ephemeral && in.InGuild() {
			msg.Flags = flagEphemeral
		}
		resp.Data = msg
	default:
		return errors.New("discord: empty interaction callback")
	}
	path := "/interactions/" + in.ID.String() + "/" + in.Token + "/callback"
	if err := d.rest.do(ctx, http.MethodPost, path, "", resp, nil); err != nil {
		return fmt.Errorf("respond to interaction %s: %w", in.ID, err)
	}
	return nil
}

// EditResponse дописывает ответ после Deferred: заменяет исходное сообщение
// (отложенное обновление) или сообщение «думает…». Токен живёт 15 минут.
func (d *Directory) EditResponse(ctx context.Context, in Interaction, msg directory.Message) error {
	if in.ApplicationID == 0 {
		return errors.New("discord: interaction without application id")
	}
	path := "/webhooks/" + in.ApplicationID.String() + "/" + in.Token + "/messages/@original"
	if err := d.rest.do(ctx, http.MethodPatch, path, "", renderEdit(msg), nil); err != nil {
		return fmt.Errorf("edit interaction response %s: %w", in.ID, err)
	}
	return nil
}

// ParseID разбирает ID из упоминания <@123>, <@!123> или числа.
func ParseID(s string) (snowflake.ID, bool) {
	for _, p := range []string{"<@!", "<@", "<#"} {
		if len(s) > len(p) && s[:len(p)] == p && s[len(s)-1] == '>' {
			s = s[len(p) : len(s)-1]
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return snowflake.ID(n), true
}
