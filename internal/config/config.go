package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/database"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/utilities"
)

type Config struct {
	Telegram TelegramConfig
	Database database.Config
	Log      utilities.Config
	Redis    RedisConfig

	// AdminIDsRaw is the administrator allow-list as written in the
	// environment. Use AdminIDs to get the parsed value.
	AdminIDsRaw string `env:"ADMIN_TG_IDS"`

	NotifyChannel string        `env:"NOTIFY_CHANNEL, default=client_update"`
	SessionTTL    time.Duration `env:"SESSION_TTL, default=24h"`
	Workers       int           `env:"WORKERS, default=8"`
	HTTPAddr      string        `env:"HTTP_ADDR, default=:8431"`
	NodeID        int64         `env:"SNOWFLAKE_NODE, default=1"`
}

type TelegramConfig struct {
	Token       string        `env:"TELEGRAM_BOT_TOKEN, required"`
	BaseURL     string        `env:"TELEGRAM_BASE_URL, default=https://api.telegram.org"`
	PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT, default=30s"`
}

// RedisConfig enables notification dedup when Addr is non-empty.
type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	DB       int           `env:"REDIS_DB, default=0"`
	DedupTTL time.Duration `env:"RELAY_DEDUP_TTL, default=10m"`
}

// Load reads configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through the given lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// AdminIDs parses the allow-list. On a parse failure it returns an empty
// list together with the error, so callers can warn and keep running
// without administrators.
func (c *Config) AdminIDs() ([]int64, error) {
	ids, err := ParseAdminIDs(c.AdminIDsRaw)
	if err != nil {
		return []int64{}, err
	}
	return ids, nil
}

// ParseAdminIDs accepts a list literal such as "[1, 2]" as well as plain
// comma or whitespace separated ids. Empty input yields an empty list.
func ParseAdminIDs(raw string) ([]int64, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "[") || strings.HasSuffix(s, "]") {
		if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("admin ids: unbalanced brackets in %q", raw)
		}
		s = s[1 : len(s)-1]
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	ids := make([]int64, 0, len(fields))
	seen := make(map[int64]struct{}, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(strings.Trim(f, `"'`), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("admin ids: invalid entry %q: %w", f, err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
