package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_DRIVER", DriverMemory)

	s, err := Load()
	req.NoError(err)
	req.Equal(8080, s.Port)
	req.Equal(time.Hour, s.TokenTTL)
	req.Equal(5*time.Second, s.StoreTimeout)
	req.Equal(256, s.SocketBuffer)
	req.Equal("@every 1h", s.UnreadDigestSchedule)
	req.False(s.EmailEnabled())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": "", "DB_DRIVER": DriverMemory}},
		{"postgres without url", map[string]string{"JWT_SECRET": "s", "DB_DRIVER": DriverPostgres, "DATABASE_URL": ""}},
		{"unknown driver", map[string]string{"JWT_SECRET": "s", "DB_DRIVER": "sqlite"}},
		{"zero socket buffer", map[string]string{"JWT_SECRET": "s", "DB_DRIVER": DriverMemory, "SOCKET_BUFFER": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestSettings_Origins(t *testing.T) {
	s := Settings{AllowedOrigins: "http://a.test, https://b.test"}
	require.Equal(t, "http://a.test,https://b.test", s.Origins())
}
