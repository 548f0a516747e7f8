package bot

import (
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/EgorLis/Recruitbot/internal/directory"
)

// rolesCache — последние известные роли участников.
type rolesCache struct {
	sync.Mutex
	roles map[snowflake.ID][]snowflake.ID
}

func newRolesCache() *rolesCache {
	return &rolesCache{roles: make(map[snowflake.ID][]snowflake.ID)}
}

// remember сохраняет новые роли и возвращает прежние.
func (c *rolesCache) remember(id snowflake.ID, roles []snowflake.ID) (prev []snowflake.ID, known bool) {
	c.Lock()
	defer c.Unlock()
	prev, known = c.roles[id]
	c.roles[id] = append([]snowflake.ID(nil), roles...)
	return prev, known
}

// prime заменяет кэш снимком всех участников.
func (c *rolesCache) prime(members []directory.Member) {
	fresh := make(map[snowflake.ID][]snowflake.ID, len(members))
	for _, m := range members {
		fresh[m.ID] = append([]snowflake.ID(nil), m.RoleIDs...)
	}
	c.Lock()
	c.roles = fresh
	c.Unlock()
}

func (c *rolesCache) forget(id snowflake.ID) {
	c.Lock()
	delete(c.roles, id)
	c.Unlock()
}
