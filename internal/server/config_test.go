package server_test

import (
	"errors"
	"testing"

	"github.com/2389-research/mail/internal/server"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("MAIL_HOME", t.TempDir())
	t.Setenv("MAIL_BIND", "")
	t.Setenv("MAIL_ALLOW_REMOTE", "")
	t.Setenv("MAIL_AUTH_TOKEN", "")
	t.Setenv("MAIL_DEFAULT_PROVIDER", "")
	t.Setenv("SWARM_NAME", "")
	t.Setenv("MAIL_DEFAULT_ENTRYPOINT", "")

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if cfg.Bind != "127.0.0.1:8770" {
		t.Errorf("Bind = %q, want 127.0.0.1:8770", cfg.Bind)
	}
	if cfg.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want openai", cfg.DefaultProvider)
	}
	if cfg.SwarmName != "local" {
		t.Errorf("SwarmName = %q, want local", cfg.SwarmName)
	}
	if cfg.DefaultEntrypoint != "supervisor" {
		t.Errorf("DefaultEntrypoint = %q, want supervisor", cfg.DefaultEntrypoint)
	}
}

func TestConfigFromEnv_RemoteWithoutTokenIsAnError(t *testing.T) {
	t.Setenv("MAIL_HOME", t.TempDir())
	t.Setenv("MAIL_ALLOW_REMOTE", "true")
	t.Setenv("MAIL_AUTH_TOKEN", "")

	_, err := server.ConfigFromEnv()
	if !errors.Is(err, server.ErrRemoteWithoutToken) {
		t.Fatalf("ConfigFromEnv() error = %v, want ErrRemoteWithoutToken", err)
	}
}

func TestConfigFromEnv_NonLoopbackBindWithoutRemoteIsAnError(t *testing.T) {
	t.Setenv("MAIL_HOME", t.TempDir())
	t.Setenv("MAIL_ALLOW_REMOTE", "")
	t.Setenv("MAIL_BIND", "0.0.0.0:8770")

	_, err := server.ConfigFromEnv()
	if !errors.Is(err, server.ErrNonLoopbackBind) {
		t.Fatalf("ConfigFromEnv() error = %v, want ErrNonLoopbackBind", err)
	}
}

func TestConfigFromEnv_RemoteWithTokenAndNonLoopbackBindSucceeds(t *testing.T) {
	t.Setenv("MAIL_HOME", t.TempDir())
	t.Setenv("MAIL_ALLOW_REMOTE", "true")
	t.Setenv("MAIL_AUTH_TOKEN", "secret")
	t.Setenv("MAIL_BIND", "0.0.0.0:8770")

	cfg, err := server.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() error = %v", err)
	}
	if !cfg.AllowRemote {
		t.Error("AllowRemote = false, want true")
	}
}
