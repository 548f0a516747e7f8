package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// PlayerSummary возвращает профиль Steam или ErrNoAccount.
// Найденные профили кэшируются на время жизни процесса.
func (c *Client) PlayerSummary(ctx context.Context, steamID string) (Player, error) {
	if !c.Enabled() {
		return Player{}, fmt.Errorf("steam api: key is not configured")
	}

	c.mu.RLock()
	p, ok := c.cache[steamID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	q := url.Values{}
	q.Set("key", c.key)
	q.Set("steamids", steamID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/ISteamUser/GetPlayerSummaries/v2/?"+q.Encode(), nil)
	if err != nil {
		return Player{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Player{}, fmt.Errorf("steam api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Player{}, fmt.Errorf("steam api: status %d", resp.StatusCode)
	}

	var sr summariesResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Player{}, fmt.Errorf("steam api: decode: %w", err)
	}
	for _, pl := range sr.Response.Players {
		if pl.SteamID == steamID {
			c.mu.Lock()
			c.cache[steamID] = pl
			c.mu.Unlock()
			c.logger.Debug("steam profile resolved", "steam_id", steamID, "persona", pl.PersonaName)
			return pl, nil
		}
	}
	return Player{}, ErrNoAccount
}
