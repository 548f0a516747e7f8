package recruit

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/clock"
	"github.com/EgorLis/Recruitbot/internal/directory"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	"github.com/EgorLis/Recruitbot/internal/profile"
)

const (
	testGuild      snowflake.ID = 900
	testRecruit    snowflake.ID = 901
	testMemberRole snowflake.ID = 902
	testStaffRole  snowflake.ID = 903
	testCategory   snowflake.ID = 904
	testArchive    snowflake.ID = 905
	testFallback   snowflake.ID = 906
	testGameRole   snowflake.ID = 910
	testOpRole     snowflake.ID = 911

	testSteamID = "76561199999999999"
)

// memStore — профили в памяти с тем же графом статусов, что и SQLite.
type memStore struct {
	mu    sync.Mutex
	next  int64
	items map[snowflake.ID]*profile.Profile

	failSetChannels error
}

func newMemStore() *memStore {
	return &memStore{items: map[snowflake.ID]*profile.Profile{}}
}

func (m *memStore) ensure(id snowflake.ID) *profile.Profile {
	p, ok := m.items[id]
	if !ok {
		m.next++
		p = &profile.Profile{Key: m.next, UserID: id, Status: profile.StatusPending, CreatedAt: time.Unix(0, 0)}
		m.items[id] = p
	}
	return p
}

func (m *memStore) GetOrCreate(_ context.Context, id snowflake.ID) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ensure(id), nil
}

func (m *memStore) SyncFromDirectory(_ context.Context, id snowflake.ID, handle, displayName string, isAdmin bool) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.ensure(id)
	p.Handle, p.DisplayName, p.IsAdmin = handle, displayName, isAdmin
	return *p, nil
}

func (m *memStore) SetLanguage(_ context.Context, id snowflake.ID, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).Language = lang
	return nil
}

func (m *memStore) SetSteamID(_ context.Context, id snowflake.ID, steamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(id).SteamID = steamID
	return nil
}

func (m *memStore) SetRecruitStatus(_ context.Context, id snowflake.ID, status profile.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.ensure(id)
	if !p.Status.CanTransition(status) {
		return profile.ErrInvalidTransition
	}
	p.Status = status
	return nil
}

func (m *memStore) SetChannels(_ context.Context, id snowflake.ID, textID, voiceID snowflake.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSetChannels != nil {
		return m.failSetChannels
	}
	p := m.ensure(id)
	p.TextChannelID, p.VoiceChannelID = textID, voiceID
	return nil
}

func (m *memStore) FindByStatus(_ context.Context, status profile.Status) ([]profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []profile.Profile
	for _, p := range m.items {
		if p.Status == status {
			out = append(out, *p)
		}
	}
	slices.SortFunc(out, func(a, b profile.Profile) int { return int(a.Key - b.Key) })
	return out, nil
}

func (m *memStore) FindByID(_ context.Context, id snowflake.ID) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return profile.Profile{}, profile.ErrNotFound
	}
	return *p, nil
}

func (m *memStore) FindByHandle(_ context.Context, handle string) (profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	handle = strings.TrimPrefix(handle, "@")
	for _, p := range m.items {
		if strings.EqualFold(p.Handle, handle) {
			return *p, nil
		}
	}
	return profile.Profile{}, profile.ErrNotFound
}

func (m *memStore) get(id snowflake.ID) profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.items[id]; ok {
		return *p
	}
	return profile.Profile{}
}

type sentMessage struct {
	to  snowflake.ID
	msg directory.Message
}

// fakeGateway — сервер в памяти. Ошибки задаются полями fail*.
type fakeGateway struct {
	mu       sync.Mutex
	nextID   snowflake.ID
	members  map[snowflake.ID]directory.Member
	channels map[snowflake.ID]directory.Channel
	archived map[snowflake.ID]directory.ArchiveSpec
	blocked  map[snowflake.ID]bool

	grants, revokes, creates, deletes int

	dms      []sentMessage
	posts    []sentMessage
	disabled []directory.MessageRef

	failGrant  error
	failCreate map[directory.ChannelKind]error

	// onResolve вызывается до поиска участника, вне g.mu
	onResolve func(id snowflake.ID)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		nextID:     5000,
		members:    map[snowflake.ID]directory.Member{},
		channels:   map[snowflake.ID]directory.Channel{},
		archived:   map[snowflake.ID]directory.ArchiveSpec{},
		blocked:    map[snowflake.ID]bool{},
		failCreate: map[directory.ChannelKind]error{},
	}
}

func (g *fakeGateway) addMember(m directory.Member) directory.Member {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[m.ID] = m
	return m
}

func (g *fakeGateway) member(id snowflake.ID) directory.Member {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[id]
}

func (g *fakeGateway) ResolveMember(_ context.Context, id snowflake.ID) (directory.Member, error) {
	if g.onResolve != nil {
		g.onResolve(id)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[id]
	if !ok {
		return directory.Member{}, directory.ErrNotFound
	}
	m.RoleIDs = slices.Clone(m.RoleIDs)
	return m, nil
}

func (g *fakeGateway) ListMembers(context.Context) ([]directory.Member, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]directory.Member, 0, len(g.members))
	for _, m := range g.members {
		out = append(out, m)
	}
	return out, nil
}

func (g *fakeGateway) GrantRole(_ context.Context, userID, roleID snowflake.ID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failGrant != nil {
		return g.failGrant
	}
	m, ok := g.members[userID]
	if !ok {
		return directory.ErrNotFound
	}
	g.grants++
	if !m.HasRole(roleID) {
		m.RoleIDs = append(slices.Clone(m.RoleIDs), roleID)
		g.members[userID] = m
	}
	return nil
}

func (g *fakeGateway) RevokeRole(_ context.Context, userID, roleID snowflake.ID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.members[userID]
	if !ok {
		return directory.ErrNotFound
	}
	g.revokes++
	m.RoleIDs = slices.DeleteFunc(slices.Clone(m.RoleIDs), func(id snowflake.ID) bool { return id == roleID })
	g.members[userID] = m
	return nil
}

func (g *fakeGateway) CreateScopedChannel(_ context.Context, spec directory.ChannelSpec) (directory.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failCreate[spec.Kind]; err != nil {
		return directory.Channel{}, err
	}
	g.nextID++
	g.creates++
	ch := directory.Channel{ID: g.nextID, Name: spec.Name, Kind: spec.Kind, CategoryID: spec.CategoryID}
	g.channels[ch.ID] = ch
	return ch, nil
}

func (g *fakeGateway) ResolveChannel(_ context.Context, id snowflake.ID) (directory.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[id]
	if !ok {
		return directory.Channel{}, directory.ErrNotFound
	}
	return ch, nil
}

func (g *fakeGateway) DeleteChannel(_ context.Context, id snowflake.ID, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.channels[id]; !ok {
		return directory.ErrNotFound
	}
	g.deletes++
	delete(g.channels, id)
	return nil
}

func (g *fakeGateway) ArchiveChannel(_ context.Context, spec directory.ArchiveSpec) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[spec.ChannelID]
	if !ok {
		return directory.ErrNotFound
	}
	ch.Name = spec.Name
	if spec.CategoryID != 0 {
		ch.CategoryID = spec.CategoryID
	}
	g.channels[ch.ID] = ch
	g.archived[ch.ID] = spec
	return nil
}

func (g *fakeGateway) SendDirectMessage(_ context.Context, userID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.blocked[userID] {
		return directory.MessageRef{}, directory.ErrBlocked
	}
	g.nextID++
	g.dms = append(g.dms, sentMessage{to: userID, msg: msg})
	return directory.MessageRef{ChannelID: userID, MessageID: g.nextID}, nil
}

func (g *fakeGateway) SendChannelMessage(_ context.Context, channelID snowflake.ID, msg directory.Message) (directory.MessageRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	g.posts = append(g.posts, sentMessage{to: channelID, msg: msg})
	return directory.MessageRef{ChannelID: channelID, MessageID: g.nextID}, nil
}

func (g *fakeGateway) DisableControls(_ context.Context, ref directory.MessageRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disabled = append(g.disabled, ref)
	return nil
}

func (g *fakeGateway) counts() (grants, revokes, creates int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.grants, g.revokes, g.creates
}

func (g *fakeGateway) postsTo(id snowflake.ID) []directory.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []directory.Message
	for _, p := range g.posts {
		if p.to == id {
			out = append(out, p.msg)
		}
	}
	return out
}

func (g *fakeGateway) dmsTo(id snowflake.ID) []directory.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []directory.Message
	for _, p := range g.dms {
		if p.to == id {
			out = append(out, p.msg)
		}
	}
	return out
}

type harness struct {
	svc   *Service
	store *memStore
	dir   *fakeGateway
	clock *clock.FakeClock
	cat   *i18n.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := i18n.Default("en")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	h := &harness{
		store: newMemStore(),
		dir:   newFakeGateway(),
		clock: clock.Fake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		cat:   cat,
	}
	h.svc = NewService(Config{
		GuildID:           testGuild,
		RecruitRoleID:     testRecruit,
		MemberRoleID:      testMemberRole,
		RecruitCategoryID: testCategory,
		ArchiveCategoryID: testArchive,
		FallbackChannelID: testFallback,
		StaffRoleIDs:      []snowflake.ID{testStaffRole},
		DefaultLang:       "en",
		ConfirmTimeout:    time.Minute,
		SyncWorkers:       2,
	}, Deps{
		Store:     h.store,
		Directory: h.dir,
		Catalog:   cat,
		Roles: StaticRoles(
			[]RoleOption{{ID: testGameRole, Emoji: "🎮", Labels: map[string]string{"en": "Arma", "ru": "Арма"}}},
			[]RoleOption{{ID: testOpRole, Labels: map[string]string{"en": "Pilot"}}},
		),
		Clock: h.clock,
	})
	return h
}

// applicant — участник сервера с профилем, языком и Steam.
func (h *harness) applicant(t *testing.T, id snowflake.ID, handle string) directory.Member {
	t.Helper()
	ctx := context.Background()
	m := h.dir.addMember(directory.Member{ID: id, Handle: handle, DisplayName: handle})
	if _, err := h.svc.ChooseLanguage(ctx, id, "ru"); err != nil {
		t.Fatalf("choose language: %v", err)
	}
	if _, err := h.svc.LinkSteam(ctx, id, testSteamID); err != nil {
		t.Fatalf("link steam: %v", err)
	}
	return m
}

func (h *harness) staff(id snowflake.ID) directory.Member {
	return h.dir.addMember(directory.Member{ID: id, Handle: "officer", RoleIDs: []snowflake.ID{testStaffRole}})
}
