package server

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := applyDefaults(&Config{}, slog.Default())

	if cfg.AuthorizationCodeTTL != 600 {
		t.Errorf("AuthorizationCodeTTL = %d, want 600", cfg.AuthorizationCodeTTL)
	}
	if cfg.CodeTTL() != 10*time.Minute {
		t.Errorf("CodeTTL() = %v, want 10m", cfg.CodeTTL())
	}
	if cfg.RotationWindow() != 5*time.Minute {
		t.Errorf("RotationWindow() = %v, want 5m", cfg.RotationWindow())
	}
	if cfg.GracePeriod() != 0 {
		t.Errorf("GracePeriod() = %v, want 0", cfg.GracePeriod())
	}
	if cfg.AuthorizationCodeBytes != 64 {
		t.Errorf("AuthorizationCodeBytes = %d, want 64", cfg.AuthorizationCodeBytes)
	}
	if cfg.RedirectURIMatching != RedirectMatchPrefix {
		t.Errorf("RedirectURIMatching = %q, want prefix", cfg.RedirectURIMatching)
	}
	if cfg.DisableRedirectURIBinding {
		t.Error("redirect URI binding should be on by default")
	}
	wantGrants := []string{GrantTypeAuthorizationCode, GrantTypePassword, GrantTypeRefreshToken}
	if !reflect.DeepEqual(cfg.GrantTypes, wantGrants) {
		t.Errorf("GrantTypes = %v, want %v", cfg.GrantTypes, wantGrants)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := applyDefaults(&Config{
		AuthorizationCodeTTL:       60,
		RefreshTokenRotationWindow: 30,
		RedirectURIMatching:        RedirectMatchExact,
		GrantTypes:                 []string{GrantTypePassword},
	}, slog.Default())

	if cfg.AuthorizationCodeTTL != 60 || cfg.RefreshTokenRotationWindow != 30 {
		t.Errorf("explicit TTLs overwritten: %+v", cfg)
	}
	if cfg.RedirectURIMatching != RedirectMatchExact {
		t.Errorf("RedirectURIMatching = %q, want exact", cfg.RedirectURIMatching)
	}
	if !reflect.DeepEqual(cfg.GrantTypes, []string{GrantTypePassword}) {
		t.Errorf("GrantTypes = %v", cfg.GrantTypes)
	}
}

func TestApplyDefaults_UnknownMatchingMode(t *testing.T) {
	cfg := applyDefaults(&Config{RedirectURIMatching: "regex"}, slog.Default())
	if cfg.RedirectURIMatching != RedirectMatchPrefix {
		t.Errorf("RedirectURIMatching = %q, want prefix", cfg.RedirectURIMatching)
	}
}
