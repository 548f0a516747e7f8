package bot

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/clock"
	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/discord"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/recruit"
	"github.com/EgorLis/Recruitbot/internal/storage/sqlite"
)

const (
	testGuild      snowflake.ID = 700
	testRecruit    snowflake.ID = 701
	testMemberRole snowflake.ID = 702
	testStaffRole  snowflake.ID = 703
	testCategory   snowflake.ID = 704
	testArchive    snowflake.ID = 705
	testChannel    snowflake.ID = 706
	testGameRole   snowflake.ID = 710
)

type post struct {
	channel snowflake.ID
	msg     directory.Message
}

type response struct {
	in discord.Interaction
	cb discord.Callback
}

// fakePlatform — Discord в памяти.
type fakePlatform struct {
	mu       sync.Mutex
	nextID   snowflake.ID
	members  map[snowflake.ID]directory.Member
	admins   map[snowflake.ID]bool
	blocked  map[snowflake.ID]bool
	channels map[snowflake.ID]directory.Channel

	posts       []post
	dms         map[snowflake.ID][]directory.Message
	responses   []response
	edits       []directory.Message
	invalidated int

	// onRespond вызывается на каждый Respond до записи ответа, вне f.mu
	onRespond func(cb discord.Callback)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		nextID:   9000,
		members:  map[snowflake.ID]directory.Member{},
		admins:   map[snowflake.ID]bool{},
		blocked:  map[snowflake.ID]bool{},
		channels: map[snowflake.ID]directory.Channel{},
		dms:      map[snowflake.ID][]directory.Message{},
	}
}

func (f *fakePlatform) addMember(m directory.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.ID] = m
	if m.Administrator {
		f.admins[m.ID] = true
	}
}

func (f *fakePlatform) Member(_ context.Context, m discord.Member) (directory.Member, error) {
	out := discord.ToMember(m, nil)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.admins[out.ID] {
		out.Administrator, out.ManageGuild = true, true
	}
	return out, nil
}

func (f *fakePlatform) Respond(_ context.Context, in discord.Interaction, cb discord.Callback) error {
	if f.onRespond != nil {
		f.onRespond(cb)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{in: in, cb: cb})
	return nil
}

func (f *fakePlatform) EditResponse(_ context.Context, _ discord.Interaction, msg directory.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakePlatform) InvalidateRoles() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakePlatform) ResolveMember(_ context.Context, id snowflake.ID) (directory.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[id]
	if !ok {
		return directory.Member{}, directory.ErrNotFound
	}
	return m, nil
}

func (f *fakePlatform) ListMembers(context.Context) ([]directory.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]directory.Member, 0, len(f.members))
	for _, m := range f.members {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakePlatform) GrantRole(_ context.Context, userID, roleID snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return directory.ErrNotFound
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	f.members[userID] = m
	return nil
}

func (f *fakePlatform) RevokeRole(_ context.Context, userID, roleID snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return directory.ErrNotFound
	}
	var kept []snowflake.ID
	for _, r := range m.RoleIDs {
		if r != roleID {
			kept = append(kept, r)
		}
	}
	m.RoleIDs = kept
	f.members[userID] = m
	return nil
}

func (f *fakePlatform) CreateScopedChannel(_ context.Context, spec directory.ChannelSpec) (directory.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ch := directory.Channel{ID: f.nextID, Name: spec.Name, Kind: spec.Kind, CategoryID: spec.CategoryID}
	f.channels[ch.ID] = ch
	return ch, nil
}

func (f *fakePlatform) ResolveChannel(_ context.Context, id snowflake.ID) (directory.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return directory.Channel{}, directory.ErrNotFound
	}
	return ch, nil
}

func (f *fakePlatform) DeleteChannel(_ context.Context, id snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
	return nil
}

func (f *fakePlatform) ArchiveChannel(_ context.Context, spec directory.ArchiveSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[spec.ChannelID]
	if !ok {
		return directory.ErrNotFound
	}
	ch.Name, ch.CategoryID = spec.Name, spec.CategoryID
	f.channels[ch.ID] = ch
	return nil
}

func (f *fakePlatform) SendDirectMessage(_ context.Context, userID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[userID] {
		return directory.MessageRef{}, directory.ErrBlocked
	}
	f.dms[userID] = append(f.dms[userID], msg)
	f.nextID++
	return directory.MessageRef{ChannelID: userID, MessageID: f.nextID}, nil
}

func (f *fakePlatform) SendChannelMessage(_ context.Context, channelID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, post{channel: channelID, msg: msg})
	f.nextID++
	return directory.MessageRef{ChannelID: channelID, MessageID: f.nextID}, nil
}

func (f *fakePlatform) DisableControls(context.Context, directory.MessageRef) error { return nil }

func (f *fakePlatform) channelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

func (f *fakePlatform) dmCount(id snowflake.ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dms[id])
}

// lastPost — текст последнего сообщения в канал (content или описание embed).
func (f *fakePlatform) lastPost(t *testing.T, channel snowflake.ID) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.posts) - 1; i >= 0; i-- {
		p := f.posts[i]
		if p.channel != channel {
			continue
		}
		text := p.msg.Content
		if p.msg.Embed != nil {
			text += p.msg.Embed.Title + "\n" + p.msg.Embed.Description
		}
		return text
	}
	t.Fatalf("no posts in channel %s", channel)
	return ""
}

func (f *fakePlatform) lastResponse(t *testing.T) discord.Callback {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.responses) == 0 {
		t.Fatal("no interaction responses")
	}
	return f.responses[len(f.responses)-1].cb
}

func (f *fakePlatform) lastEdit(t *testing.T) directory.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("no deferred follow-ups")
	}
	return f.edits[len(f.edits)-1]
}

type harness struct {
	bot   *RecruitBot
	svc   *recruit.Service
	store *sqlite.Store
	dir   *fakePlatform
	clock *clock.FakeClock
	cat   *i18n.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "bot.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cat, err := i18n.Default("en")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	clk := clock.Fake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	dir := newFakePlatform()
	roles := recruit.StaticRoles(
		[]recruit.RoleOption{{ID: testGameRole, Emoji: "🎮", Labels: map[string]string{"en": "Arma"}}},
		nil,
	)
	svc := recruit.NewService(recruit.Config{
		GuildID:           testGuild,
		RecruitRoleID:     testRecruit,
		MemberRoleID:      testMemberRole,
		RecruitCategoryID: testCategory,
		ArchiveCategoryID: testArchive,
		StaffRoleIDs:      []snowflake.ID{testStaffRole},
		DefaultLang:       "en",
		ConfirmTimeout:    time.Minute,
		SyncWorkers:       2,
	}, recruit.Deps{
		Store:     store,
		Directory: dir,
		Catalog:   cat,
		Roles:     roles,
		Clock:     clk,
	})
	b := New(svc, dir, nil, Options{GuildID: testGuild, DefaultLang: "en", Clock: clk})
	return &harness{bot: b, svc: svc, store: store, dir: dir, clock: clk, cat: cat}
}

func (h *harness) member(id snowflake.ID, handle string, roles ...snowflake.ID) directory.Member {
	m := directory.Member{ID: id, Handle: handle, RoleIDs: roles}
	h.dir.addMember(m)
	return m
}

func (h *harness) text(key string, params i18n.Params) string {
	return h.cat.Text("en", key, params)
}

// message — команда на сервере от участника с ролями.
func message(author snowflake.ID, content string, roles ...snowflake.ID) discord.MessageCreate {
	g := testGuild
	return discord.MessageCreate{
		ID:        1,
		ChannelID: testChannel,
		GuildID:   &g,
		Author:    discord.User{ID: author, Username: "user" + author.String()},
		Member:    &discord.Member{Roles: roles},
		Content:   content,
	}
}

func memberEvent(id snowflake.ID, handle string, roles ...snowflake.ID) discord.MemberEvent {
	return discord.MemberEvent{
		GuildID: testGuild,
		Member: discord.Member{
			User:  &discord.User{ID: id, Username: handle},
			Roles: roles,
		},
	}
}

// interaction собирает событие так, как его присылает gateway.
func interaction(t *testing.T, raw string) discord.Interaction {
	t.Helper()
	var in discord.Interaction
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		t.Fatalf("decode interaction: %v", err)
	}
	return in
}

// dmButton — нажатие кнопки в ЛС.
func dmButton(t *testing.T, user snowflake.ID, customID string) discord.Interaction {
	t.Helper()
	return interaction(t, `{"id":"1","type":3,"token":"tok","locale":"en-US",
		"user":{"id":"`+user.String()+`","username":"u`+user.String()+`"},
		"message":{"id":"55","channel_id":"56"},
		"data":{"custom_id":"`+customID+`"}}`)
}

func contains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Fatalf("want %q in:\n%s", want, got)
	}
}
