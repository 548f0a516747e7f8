package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bwmarrin/snowflake"
	"gopkg.in/yaml.v3"

	"github.com/EgorLis/Recruitbot/internal/recruit"
)

type RoleConf struct {
	ID           string            `yaml:"id"`
	Emoji        string            `yaml:"emoji,omitempty"`
	Labels       map[string]string `yaml:"labels"`
	Descriptions map[string]string `yaml:"descriptions,omitempty"`
}

type RolesConfig struct {
	GameRoles      []RoleConf `yaml:"game_roles"`
	OperationRoles []RoleConf `yaml:"operation_roles"`
}

// ConfigStore — самоназначаемые роли из YAML. Реализует recruit.RoleSource.
type ConfigStore struct {
	mu   sync.Mutex
	path string
	data RolesConfig

	games, operations []recruit.RoleOption
}

func newConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

// LoadRoles читает файл ролей; если файла нет, создаёт пустой.
func LoadRoles(path string) (*ConfigStore, error) {
	cs := newConfigStore(path)
	if err := cs.Load(); err != nil {
		return nil, err
	}
	return cs, nil
}

// Load перечитывает файл. При ошибке прежние роли остаются в силе.
func (cs *ConfigStore) Load() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	f := cs.path
	_ = os.MkdirAll(filepath.Dir(f), 0755)
	b, err := os.ReadFile(f)
	if err != nil {
		if os.IsNotExist(err) {
			return cs.saveLocked() // создаём пустой
		}
		return err
	}
	var data RolesConfig
	if err := yaml.Unmarshal(b, &data); err != nil {
		return fmt.Errorf("parse %s: %w", f, err)
	}
	games, err := toOptions(data.GameRoles)
	if err != nil {
		return fmt.Errorf("%s: game_roles: %w", f, err)
	}
	ops, err := toOptions(data.OperationRoles)
	if err != nil {
		return fmt.Errorf("%s: operation_roles: %w", f, err)
	}
	cs.data, cs.games, cs.operations = data, games, ops
	return nil
}

func (cs *ConfigStore) saveLocked() error {
	b, err := yaml.Marshal(&cs.data)
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, b, 0644)
}

func (cs *ConfigStore) GameRoles() []recruit.RoleOption {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]recruit.RoleOption(nil), cs.games...)
}

func (cs *ConfigStore) OperationRoles() []recruit.RoleOption {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]recruit.RoleOption(nil), cs.operations...)
}

func toOptions(in []RoleConf) ([]recruit.RoleOption, error) {
	out := make([]recruit.RoleOption, 0, len(in))
	seen := map[snowflake.ID]bool{}
	for i, r := range in {
		id, err := snowflake.ParseString(r.ID)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("role #%d: bad id %q", i+1, r.ID)
		}
		if seen[id] {
			return nil, fmt.Errorf("role #%d: duplicate id %s", i+1, id)
		}
		seen[id] = true
		if len(r.Labels) == 0 {
			return nil, fmt.Errorf("role %s: no labels", id)
		}
		out = append(out, recruit.RoleOption{
			ID:           id,
			Emoji:        r.Emoji,
			Labels:       r.Labels,
			Descriptions: r.Descriptions,
		})
	}
	return out, nil
}
