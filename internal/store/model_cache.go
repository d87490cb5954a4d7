package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensymbolicai/opensymbolicai-cli/internal/logging"
)

const dateLayout = "2006-01-02"

// ModelLister fetches a provider's model list.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ModelCache stores each provider's model list for the rest of the local day.
type ModelCache struct {
	db  *DB
	now func() time.Time
	log *logging.Logger
}

// NewModelCache creates a cache over db.
func NewModelCache(db *DB) *ModelCache {
	return &ModelCache{db: db, now: time.Now, log: db.log.Sub("store.models")}
}

// Get returns the cached models for provider when they were fetched today.
func (c *ModelCache) Get(provider string) ([]string, bool) {
	var raw, fetchedOn string
	err := c.db.sql.QueryRow(
		"SELECT models, fetched_on FROM model_cache WHERE provider = ?", provider,
	).Scan(&raw, &fetchedOn)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.log.Debug().Err(err).Str("provider", provider).Msg("reading model cache")
		}
		return nil, false
	}
	if fetchedOn != c.today() {
		return nil, false
	}
	var models []string
	if err := json.Unmarshal([]byte(raw), &models); err != nil {
		c.log.Debug().Err(err).Str("provider", provider).Msg("corrupt model cache entry")
		return nil, false
	}
	if models == nil {
		models = []string{}
	}
	return models, true
}

// Put records models as fetched today, replacing any earlier entry.
func (c *ModelCache) Put(provider string, models []string) error {
	if models == nil {
		models = []string{}
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return fmt.Errorf("encoding models: %w", err)
	}
	_, err = c.db.sql.Exec(`
		INSERT INTO model_cache (provider, models, fetched_on, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(provider) DO UPDATE SET
			models = excluded.models,
			fetched_on = excluded.fetched_on,
			updated_at = excluded.updated_at
	`, provider, string(raw), c.today())
	if err != nil {
		return fmt.Errorf("saving models for %s: %w", provider, err)
	}
	return nil
}

// Clear drops the entry for provider, or every entry when provider is "".
func (c *ModelCache) Clear(provider string) error {
	var err error
	if provider == "" {
		_, err = c.db.sql.Exec("DELETE FROM model_cache")
	} else {
		_, err = c.db.sql.Exec("DELETE FROM model_cache WHERE provider = ?", provider)
	}
	if err != nil {
		return fmt.Errorf("clearing model cache: %w", err)
	}
	return nil
}

// Models returns the provider's models, from the cache when it is fresh
// and refresh is false, otherwise from lister. Fetched lists are cached.
// A nil lister means the provider is unknown.
func (c *ModelCache) Models(ctx context.Context, provider string, lister ModelLister, refresh bool) ([]string, error) {
	if !refresh {
		if models, ok := c.Get(provider); ok {
			return models, nil
		}
	}
	if lister == nil {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	models, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.Put(provider, models); err != nil {
		c.log.Warn().Err(err).Str("provider", provider).Msg("caching models")
	}
	c.log.Debug().Str("provider", provider).Int("models", len(models)).Msg("fetched models")
	return models, nil
}

func (c *ModelCache) today() string {
	return c.now().Local().Format(dateLayout)
}
