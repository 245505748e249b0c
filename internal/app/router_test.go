package app

import (
	"testing"

	"sitepulse.io/sitepulse/internal/config"
)

func TestBuildCORSConfig_AllowsAllWhenOriginsEmpty(t *testing.T) {
	cfg := &config.Config{}

	got := buildCORSConfig(cfg)
	if !got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want true", got.AllowAllOrigins)
	}
	if len(got.AllowOrigins) != 0 {
		t.Fatalf("AllowOrigins = %#v, want empty", got.AllowOrigins)
	}
}

func TestBuildCORSConfig_UsesConfiguredAllowlist(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			AllowedOrigins: []string{"https://dashboard.example.com"},
		},
	}

	got := buildCORSConfig(cfg)
	if got.AllowAllOrigins {
		t.Fatalf("AllowAllOrigins = %v, want false", got.AllowAllOrigins)
	}
	if len(got.AllowOrigins) != 1 || got.AllowOrigins[0] != "https://dashboard.example.com" {
		t.Fatalf("AllowOrigins = %#v, want the configured origin", got.AllowOrigins)
	}
}
