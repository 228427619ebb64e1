package config

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestParseAdminIDs(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    []int64
		wantErr bool
	}{
		{"empty", "", []int64{}, false},
		{"empty literal", "[]", []int64{}, false},
		{"list literal", "[111, 222]", []int64{111, 222}, false},
		{"quoted literal", `["111", '222']`, []int64{111, 222}, false},
		{"comma separated", "111,222", []int64{111, 222}, false},
		{"space separated", "111 222\t333", []int64{111, 222, 333}, false},
		{"duplicates collapse", "[5, 5, 6]", []int64{5, 6}, false},
		{"garbage", "[1, two]", nil, true},
		{"unbalanced", "[1, 2", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAdminIDs(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAdminIDs_FallsBackToEmpty(t *testing.T) {
	cfg := &Config{AdminIDsRaw: "not a list"}
	ids, err := cfg.AdminIDs()
	if err == nil {
		t.Fatal("expected parse error")
	}
	if ids == nil || len(ids) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", ids)
	}
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"TELEGRAM_BOT_TOKEN": "123:abc",
		"ADMIN_TG_IDS":       "[42]",
	}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Telegram.BaseURL != "https://api.telegram.org" {
		t.Errorf("unexpected base url %q", cfg.Telegram.BaseURL)
	}
	if cfg.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("unexpected poll timeout %v", cfg.Telegram.PollTimeout)
	}
	if cfg.NotifyChannel != "client_update" || cfg.Workers != 8 || cfg.SessionTTL != 24*time.Hour {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Database.Port != 5432 || !cfg.Database.AutoMigrate {
		t.Errorf("unexpected database defaults: %+v", cfg.Database)
	}
	ids, err := cfg.AdminIDs()
	if err != nil || !reflect.DeepEqual(ids, []int64{42}) {
		t.Errorf("AdminIDs = %v, %v", ids, err)
	}
}

func TestLoadWith_MissingToken(t *testing.T) {
	if _, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Fatal("expected error for missing TELEGRAM_BOT_TOKEN")
	}
}
