package config

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DISCORD_TOKEN": "token",
		"GUILD_ID":      "123456789012345678",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GuildID != snowflake.ID(123456789012345678) {
		t.Fatalf("guild: %d", cfg.GuildID)
	}
	if cfg.CommandPrefix != "!" || cfg.DefaultLang != "en" {
		t.Fatalf("defaults: prefix=%q lang=%q", cfg.CommandPrefix, cfg.DefaultLang)
	}
	if cfg.ConfirmTimeout != 60*time.Second || cfg.RepairInterval != 10*time.Minute {
		t.Fatalf("durations: %s %s", cfg.ConfirmTimeout, cfg.RepairInterval)
	}
	if cfg.RecruitRoleID != 0 || len(cfg.StaffRoleIDs()) != 0 {
		t.Fatal("unset roles must stay zero")
	}
}

func TestLoadFromRequiresToken(t *testing.T) {
	if _, err := LoadFrom(map[string]string{"GUILD_ID": "1"}); err == nil {
		t.Fatal("expected error without DISCORD_TOKEN")
	}
}

func TestLoadFromRejectsBadID(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"DISCORD_TOKEN":   "token",
		"GUILD_ID":        "1",
		"RECRUIT_ROLE_ID": "not-a-number",
	})
	if err == nil {
		t.Fatal("expected error for bad id")
	}
}

func TestStaffRoleIDs(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DISCORD_TOKEN":      "token",
		"GUILD_ID":           "1",
		"RECRUITER_ROLE_ID":  "10",
		"RECRUITER_ROLE_IDS": "20,10,30",
		"LOG_LEVEL":          "debug",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := cfg.StaffRoleIDs()
	want := []snowflake.ID{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("staff roles: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("staff roles: %v", got)
		}
	}
	if cfg.SlogLevel().String() != "DEBUG" {
		t.Fatalf("level: %s", cfg.SlogLevel())
	}
}
