package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/EgorLis/Recruitbot/internal/bot"
	"github.com/EgorLis/Recruitbot/internal/config"
	"github.com/EgorLis/Recruitbot/internal/discord"
	"github.com/EgorLis/Recruitbot/internal/i18n"
	platformotel "github.com/EgorLis/Recruitbot/internal/platform/otel"
	"github.com/EgorLis/Recruitbot/internal/recruit"
	"github.com/EgorLis/Recruitbot/internal/steamapi"
	"github.com/EgorLis/Recruitbot/internal/storage/sqlite"
)

func main() {
	if err := run(); err != nil {
		config.Exitf("recruitbot: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rolesPath := pflag.String("roles", cfg.RolesFile, "YAML с игровыми ролями и ролями для операций")
	dbPath := pflag.String("db", cfg.DatabasePath, "файл базы SQLite")
	migrateOnly := pflag.Bool("migrate-only", false, "применить миграции и выйти")
	repairOnce := pflag.Bool("repair-once", false, "один проход ремонта заявок и выход")
	pflag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, *dbPath, logger.With("component", "store"))
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.Close()
	if *migrateOnly {
		logger.Info("migrations applied", "db", *dbPath)
		return nil
	}

	shutdown, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", "err", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	catalog, err := i18n.Default(cfg.DefaultLang)
	if err != nil {
		return fmt.Errorf("locales: %w", err)
	}
	roles, err := bot.LoadRoles(*rolesPath)
	if err != nil {
		return fmt.Errorf("roles: %w", err)
	}

	rest := discord.NewREST(cfg.DiscordToken, discord.WithLogger(logger.With("component", "discord")))
	dir := discord.NewDirectory(rest, cfg.GuildID)

	// пустой ключ — проверка аккаунтов Steam выключена
	var steam recruit.SteamLookup
	if sc := steamapi.NewClient(cfg.SteamAPIKey, steamapi.WithLogger(logger.With("component", "steam"))); sc.Enabled() {
		steam = sc
	}

	svc := recruit.NewService(recruit.Config{
		GuildID:           cfg.GuildID,
		RecruitRoleID:     cfg.RecruitRoleID,
		MemberRoleID:      cfg.MemberRoleID,
		RecruitCategoryID: cfg.RecruitCategoryID,
		ArchiveCategoryID: cfg.ArchiveCategoryID,
		PingRoleID:        cfg.PingRoleID,
		FallbackChannelID: cfg.FallbackChannelID,
		StaffRoleIDs:      cfg.StaffRoleIDs(),
		DefaultLang:       cfg.DefaultLang,
		CommandPrefix:     cfg.CommandPrefix,
		Welcome:           map[string]string{"en": cfg.Welcome("en"), "ru": cfg.Welcome("ru"), "uk": cfg.Welcome("uk")},
		ConfirmTimeout:    cfg.ConfirmTimeout,
		SyncWorkers:       cfg.SyncWorkers,
	}, recruit.Deps{
		Store:     store,
		Directory: dir,
		Catalog:   catalog,
		Roles:     roles,
		Steam:     steam,
		Logger:    logger.With("component", "recruit"),
		Tracer:    platformotel.Tracer("github.com/EgorLis/Recruitbot/internal/recruit"),
	})

	if *repairOnce {
		rep, err := svc.Repair(ctx)
		if err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		logger.Info("repair finished", "checked", rep.Checked, "repaired", rep.Repaired, "failed", rep.Failed)
		return nil
	}

	b := bot.New(svc, dir, roles, bot.Options{
		GuildID:        cfg.GuildID,
		Prefix:         cfg.CommandPrefix,
		DefaultLang:    cfg.DefaultLang,
		RepairInterval: cfg.RepairInterval,
		Logger:         logger.With("component", "bot"),
	})

	b.SetSession(discord.NewSession(discord.SessionConfig{
		Token:  cfg.DiscordToken,
		Logger: logger.With("component", "gateway"),
	}))
	if err := b.Start(); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer b.Stop()

	logger.Info("running… press Ctrl+C to stop", "guild_id", cfg.GuildID)

	select {
	case <-ctx.Done():
		return nil
	case err := <-b.Err():
		if errors.Is(err, discord.ErrFatalClose) {
			logger.Error("gateway refused the session, check DISCORD_TOKEN and intents")
		}
		return err
	}
}
