package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/profile"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "recruitbot.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetOrCreateIsStable(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreate(ctx, 1001)
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.Status != profile.StatusPending {
		t.Fatalf("new profile status: %q", first.Status)
	}
	if first.HasWorkspace() || first.HasSteam() {
		t.Fatalf("new profile must be empty: %+v", first)
	}

	again, err := store.GetOrCreate(ctx, 1001)
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if again.Key != first.Key || again.RecruitCode() != first.RecruitCode() {
		t.Fatalf("recruit code changed: %s -> %s", first.RecruitCode(), again.RecruitCode())
	}

	other, err := store.GetOrCreate(ctx, 1002)
	if err != nil {
		t.Fatalf("get or create other: %v", err)
	}
	if other.Key == first.Key {
		t.Fatal("distinct users share a key")
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	keys := make([]int64, 8)
	errs := make([]error, 8)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.GetOrCreate(ctx, 42)
			keys[i], errs[i] = p.Key, err
		}(i)
	}
	wg.Wait()

	for i := range keys {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if keys[i] != keys[0] {
			t.Fatalf("worker %d got key %d, want %d", i, keys[i], keys[0])
		}
	}
}

func TestSettersUpsert(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	id := snowflake.ID(555)

	if err := store.SetLanguage(ctx, id, "ru"); err != nil {
		t.Fatalf("set language: %v", err)
	}
	if err := store.SetSteamID(ctx, id, "76561199000000001"); err != nil {
		t.Fatalf("set steam: %v", err)
	}
	if err := store.SetChannels(ctx, id, 10, 11); err != nil {
		t.Fatalf("set channels: %v", err)
	}

	p, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Language != "ru" || p.SteamID != "76561199000000001" {
		t.Fatalf("fields not persisted: %+v", p)
	}
	if p.TextChannelID != 10 || p.VoiceChannelID != 11 {
		t.Fatalf("channels: %d/%d", p.TextChannelID, p.VoiceChannelID)
	}
}

func TestSyncKeepsRecruitFields(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.SetSteamID(ctx, 7, "76561199000000002"); err != nil {
		t.Fatalf("set steam: %v", err)
	}
	p, err := store.SyncFromDirectory(ctx, 7, "Ghost", "Ghost Rider", true)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if p.Handle != "Ghost" || p.DisplayName != "Ghost Rider" || !p.IsAdmin {
		t.Fatalf("cached fields: %+v", p)
	}
	if p.SteamID != "76561199000000002" {
		t.Fatal("sync overwrote steam id")
	}

	found, err := store.FindByHandle(ctx, "@ghost")
	if err != nil {
		t.Fatalf("find by handle: %v", err)
	}
	if found.UserID != 7 {
		t.Fatalf("find by handle: user %d", found.UserID)
	}
}

func TestFindMissing(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, err := store.FindByID(ctx, 9); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("find by id: %v", err)
	}
	if _, err := store.FindByHandle(ctx, "nobody"); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("find by handle: %v", err)
	}
	if _, err := store.FindByHandle(ctx, "  "); !errors.Is(err, profile.ErrNotFound) {
		t.Fatalf("empty handle: %v", err)
	}
}

func TestRecruitStatusGraph(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	id := snowflake.ID(77)

	if err := store.SetRecruitStatus(ctx, id, profile.StatusDone); !errors.Is(err, profile.ErrInvalidTransition) {
		t.Fatalf("pending -> done: %v", err)
	}
	if err := store.SetRecruitStatus(ctx, id, profile.StatusReady); err != nil {
		t.Fatalf("pending -> ready: %v", err)
	}
	if err := store.SetRecruitStatus(ctx, id, profile.StatusReady); err != nil {
		t.Fatalf("ready -> ready: %v", err)
	}
	if err := store.SetRecruitStatus(ctx, id, profile.StatusRejected); err != nil {
		t.Fatalf("ready -> rejected: %v", err)
	}
	if err := store.SetRecruitStatus(ctx, id, profile.StatusDone); !errors.Is(err, profile.ErrInvalidTransition) {
		t.Fatalf("rejected -> done: %v", err)
	}
	if err := store.SetRecruitStatus(ctx, id, "banned"); err == nil {
		t.Fatal("unknown status accepted")
	}

	p, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if p.Status != profile.StatusRejected {
		t.Fatalf("status: %q", p.Status)
	}
}

func TestFindByStatus(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, id := range []snowflake.ID{1, 2, 3} {
		if _, err := store.GetOrCreate(ctx, id); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	for _, id := range []snowflake.ID{1, 3} {
		if err := store.SetRecruitStatus(ctx, id, profile.StatusReady); err != nil {
			t.Fatalf("ready %d: %v", id, err)
		}
	}

	ready, err := store.FindByStatus(ctx, profile.StatusReady)
	if err != nil {
		t.Fatalf("find ready: %v", err)
	}
	if len(ready) != 2 || ready[0].UserID != 1 || ready[1].UserID != 3 {
		t.Fatalf("ready: %+v", ready)
	}
	done, err := store.FindByStatus(ctx, profile.StatusDone)
	if err != nil {
		t.Fatalf("find done: %v", err)
	}
	if len(done) != 0 {
		t.Fatalf("done: %+v", done)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	store, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created, err := store.GetOrCreate(ctx, 99)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.Close()

	store, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	p, err := store.FindByID(ctx, 99)
	if err != nil {
		t.Fatalf("find after reopen: %v", err)
	}
	if p.RecruitCode() != created.RecruitCode() {
		t.Fatalf("code after reopen: %s != %s", p.RecruitCode(), created.RecruitCode())
	}
}
