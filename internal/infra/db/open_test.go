package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
	assert.Empty(t, cfg.URL)
}

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    Config
		wantErr bool
	}{
		{
			name:    "missing url",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "defaults",
			env:  map[string]string{"DATABASE_URL": "postgres://app@db/notify"},
			want: func() Config {
				c := DefaultConfig()
				c.URL = "postgres://app@db/notify"
				return c
			}(),
		},
		{
			name: "custom pool",
			env: map[string]string{
				"DATABASE_URL":          "postgres://app@db/notify",
				"DB_MAX_OPEN_CONNS":     "50",
				"DB_MAX_IDLE_CONNS":     "5",
				"DB_CONN_MAX_LIFETIME":  "10m",
				"DB_CONN_MAX_IDLE_TIME": "1m",
			},
			want: Config{
				URL:             "postgres://app@db/notify",
				MaxOpenConns:    50,
				MaxIdleConns:    5,
				ConnMaxLifetime: 10 * time.Minute,
				ConnMaxIdleTime: time.Minute,
				PingTimeout:     5 * time.Second,
			},
		},
		{
			name:    "non-numeric",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "DB_MAX_OPEN_CONNS": "many"},
			wantErr: true,
		},
		{
			name:    "idle above open",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "DB_MAX_OPEN_CONNS": "2", "DB_MAX_IDLE_CONNS": "3"},
			wantErr: true,
		},
		{
			name:    "zero open",
			env:     map[string]string{"DATABASE_URL": "postgres://x", "DB_MAX_OPEN_CONNS": "0"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := LoadConfig()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpen_MissingURL(t *testing.T) {
	_, err := Open(context.Background(), DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestOpen_PingFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("dials a closed port")
	}
	cfg := DefaultConfig()
	cfg.URL = "postgres://notify@127.0.0.1:1/notify?sslmode=disable&connect_timeout=1"
	cfg.PingTimeout = 2 * time.Second

	db, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "ping database")
}
