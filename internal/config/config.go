// Package config читает настройки процесса из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	DiscordToken  string       `env:"DISCORD_TOKEN,notEmpty"`
	GuildID       snowflake.ID `env:"GUILD_ID,notEmpty"`
	CommandPrefix string       `env:"COMMAND_PREFIX" envDefault:"!"`

	RecruitRoleID     snowflake.ID   `env:"RECRUIT_ROLE_ID"`
	MemberRoleID      snowflake.ID   `env:"MEMBER_ROLE_ID"`
	RecruiterRoleID   snowflake.ID   `env:"RECRUITER_ROLE_ID"`
	RecruiterRoleIDs  []snowflake.ID `env:"RECRUITER_ROLE_IDS"`
	RecruitCategoryID snowflake.ID   `env:"RECRUIT_CATEGORY_ID"`
	ArchiveCategoryID snowflake.ID   `env:"ARCHIVE_CATEGORY_ID"`
	PingRoleID        snowflake.ID   `env:"RECRUIT_PING_ROLE_ID"`
	FallbackChannelID snowflake.ID   `env:"FALLBACK_CHANNEL_ID"`

	DefaultLang string `env:"DEFAULT_LANG" envDefault:"en"`
	WelcomeEN   string `env:"WELCOME_MESSAGE_EN"`
	WelcomeRU   string `env:"WELCOME_MESSAGE_RU"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/recruitbot.db"`
	RolesFile    string `env:"ROLES_FILE" envDefault:"conf/roles.yaml"`

	SteamAPIKey string `env:"STEAM_API_KEY"`

	RepairInterval time.Duration `env:"REPAIR_INTERVAL" envDefault:"10m"`
	ConfirmTimeout time.Duration `env:"CONFIRM_TIMEOUT" envDefault:"60s"`
	SyncWorkers    int           `env:"SYNC_WORKERS" envDefault:"4"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"recruitbot"`
}

// StaffRoleIDs — роли, которым разрешено решать по заявкам (без дублей и нулей).
func (c Config) StaffRoleIDs() []snowflake.ID {
	seen := map[snowflake.ID]bool{}
	var out []snowflake.ID
	for _, id := range append([]snowflake.ID{c.RecruiterRoleID}, c.RecruiterRoleIDs...) {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Welcome — приветствие из окружения для языка или пустая строка.
func (c Config) Welcome(lang string) string {
	switch lang {
	case "ru", "uk":
		return c.WelcomeRU
	case "en":
		return c.WelcomeEN
	}
	return ""
}

func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load читает окружение процесса.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom читает переданное окружение; nil — окружение процесса.
func LoadFrom(environ map[string]string) (Config, error) {
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(snowflake.ID(0)): parseSnowflake,
		},
	}
	if environ != nil {
		opts.Environment = environ
	}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	cfg.DefaultLang = strings.ToLower(strings.TrimSpace(cfg.DefaultLang))
	if cfg.ConfirmTimeout <= 0 {
		return Config{}, fmt.Errorf("CONFIRM_TIMEOUT must be positive, got %s", cfg.ConfirmTimeout)
	}
	if cfg.SyncWorkers < 1 {
		cfg.SyncWorkers = 1
	}
	return cfg, nil
}

func parseSnowflake(v string) (any, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return snowflake.ID(0), nil
	}
	id, err := snowflake.ParseString(v)
	if err != nil {
		return nil, fmt.Errorf("invalid discord id %q: %w", v, err)
	}
	return id, nil
}

// Exitf печатает ошибку в stderr и завершает процесс с кодом 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
