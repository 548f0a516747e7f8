// Package sqlite реализует profile.Store поверх SQLite (modernc.org/sqlite).
//
// Каждая операция выполняется в одной транзакции: либо коммит целиком, либо
// откат без частичных записей.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	_ "modernc.org/sqlite"

	"github.com/EgorLis/Recruitbot/internal/profile"
	"github.com/EgorLis/Recruitbot/internal/storage/sqlite/migrations"
	"github.com/EgorLis/Recruitbot/internal/storage/sqlitemigrate"
)

const userColumns = `id, discord_id, COALESCE(username, ''), COALESCE(display_name, ''),
	COALESCE(steam_id, ''), COALESCE(language, ''), recruit_status, is_admin,
	recruit_text_channel_id, recruit_voice_channel_id, created_at, updated_at`

type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ profile.Store = (*Store)(nil)

// Open открывает (или создаёт) файл базы и применяет миграции.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	// _txlock=immediate: транзакции read-then-write сразу берут RESERVED lock,
	// иначе параллельные апсерты ловят SQLITE_BUSY при апгрейде блокировки.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("profile store opened", "path", path)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// withTx — единица работы: fn либо коммитится целиком, либо откатывается.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, profile.ErrNotFound) || errors.Is(err, profile.ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

// ensure вставляет пустую запись, если её ещё нет.
func (s *Store) ensure(ctx context.Context, tx *sql.Tx, userID snowflake.ID) error {
	now := s.now().UTC().UnixMilli()
	_, err := tx.ExecContext(ctx, `
INSERT INTO users (discord_id, recruit_status, is_admin, created_at, updated_at)
VALUES (?, 'pending', 0, ?, ?)
ON CONFLICT (discord_id) DO NOTHING`, userID.Int64(), now, now)
	return err
}

func (s *Store) touch(ctx context.Context, tx *sql.Tx, userID snowflake.ID, set string, args ...any) error {
	if err := s.ensure(ctx, tx, userID); err != nil {
		return err
	}
	args = append(args, s.now().UTC().UnixMilli(), userID.Int64())
	_, err := tx.ExecContext(ctx, `UPDATE users SET `+set+`, updated_at = ? WHERE discord_id = ?`, args...)
	return err
}

func (s *Store) GetOrCreate(ctx context.Context, userID snowflake.ID) (profile.Profile, error) {
	var p profile.Profile
	err := s.withTx(ctx, "get or create profile", func(tx *sql.Tx) error {
		if err := s.ensure(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		p, err = scanProfile(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id = ?`, userID.Int64()))
		return err
	})
	return p, err
}

// SyncFromDirectory обновляет только кэшированные поля Discord.
func (s *Store) SyncFromDirectory(ctx context.Context, userID snowflake.ID, handle, displayName string, isAdmin bool) (profile.Profile, error) {
	var p profile.Profile
	err := s.withTx(ctx, "sync profile", func(tx *sql.Tx) error {
		if err := s.touch(ctx, tx, userID, `username = ?, display_name = ?, is_admin = ?`,
			nullable(handle), nullable(displayName), isAdmin); err != nil {
			return err
		}
		var err error
		p, err = scanProfile(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE discord_id = ?`, userID.Int64()))
		return err
	})
	return p, err
}

func (s *Store) SetLanguage(ctx context.Context, userID snowflake.ID, lang string) error {
	return s.withTx(ctx, "set language", func(tx *sql.Tx) error {
		return s.touch(ctx, tx, userID, `language = ?`, nullable(lang))
	})
}

func (s *Store) SetSteamID(ctx context.Context, userID snowflake.ID, steamID string) error {
	return s.withTx(ctx, "set steam id", func(tx *sql.Tx) error {
		return s.touch(ctx, tx, userID, `steam_id = ?`, nullable(steamID))
	})
}

// SetRecruitStatus двигает статус только по рёбрам графа переходов.
func (s *Store) SetRecruitStatus(ctx context.Context, userID snowflake.ID, status profile.Status) error {
	if !status.Valid() {
		return fmt.Errorf("set recruit status: unknown status %q", status)
	}
	return s.withTx(ctx, "set recruit status", func(tx *sql.Tx) error {
		if err := s.ensure(ctx, tx, userID); err != nil {
			return err
		}
		var current string
		if err := tx.QueryRowContext(ctx, `SELECT recruit_status FROM users WHERE discord_id = ?`, userID.Int64()).Scan(&current); err != nil {
			return err
		}
		from, err := profile.ParseStatus(current)
		if err != nil {
			return err
		}
		if !from.CanTransition(status) {
			return fmt.Errorf("%w: %s -> %s", profile.ErrInvalidTransition, from, status)
		}
		if from == status {
			return nil
		}
		return s.touch(ctx, tx, userID, `recruit_status = ?`, string(status))
	})
}

func (s *Store) SetChannels(ctx context.Context, userID snowflake.ID, textID, voiceID snowflake.ID) error {
	return s.withTx(ctx, "set recruit channels", func(tx *sql.Tx) error {
		return s.touch(ctx, tx, userID, `recruit_text_channel_id = ?, recruit_voice_channel_id = ?`,
			textID.Int64(), voiceID.Int64())
	})
}

func (s *Store) FindByStatus(ctx context.Context, status profile.Status) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE recruit_status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("find by status: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("find by status: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find by status: %w", err)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, userID snowflake.ID) (profile.Profile, error) {
	return s.findOne(ctx, "find by id", `discord_id = ?`, userID.Int64())
}

// FindByHandle ищет по username без учёта регистра.
func (s *Store) FindByHandle(ctx context.Context, handle string) (profile.Profile, error) {
	handle = strings.TrimSpace(strings.TrimPrefix(handle, "@"))
	if handle == "" {
		return profile.Profile{}, profile.ErrNotFound
	}
	return s.findOne(ctx, "find by handle", `username = ? COLLATE NOCASE`, handle)
}

func (s *Store) findOne(ctx context.Context, op, where string, arg any) (profile.Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY id LIMIT 1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (profile.Profile, error) {
	var (
		p                    profile.Profile
		discordID            int64
		status               string
		textID, voiceID      int64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.Key, &discordID, &p.Handle, &p.DisplayName, &p.SteamID, &p.Language,
		&status, &p.IsAdmin, &textID, &voiceID, &createdAt, &updatedAt); err != nil {
		return profile.Profile{}, err
	}
	st, err := profile.ParseStatus(status)
	if err != nil {
		return profile.Profile{}, err
	}
	p.UserID = snowflake.ParseInt64(discordID)
	p.Status = st
	p.TextChannelID = snowflake.ParseInt64(textID)
	p.VoiceChannelID = snowflake.ParseInt64(voiceID)
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return p, nil
}

func nullable(s string) any {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return s
}
