package util

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFallbackEnv(t *testing.T, contents string) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	binDir := filepath.Join(home, ".local", "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", binDir, err)
	}
	if err := os.WriteFile(filepath.Join(binDir, ".env"), []byte(contents), 0o644); err != nil {
		t.Fatalf("write fallback env: %v", err)
	}
	return home
}

func TestLoadEnvWithLocalBinFallback(t *testing.T) {
	home := writeFallbackEnv(t, "TOWERBOT_TOKEN=token-from-file\n")
	t.Setenv("HOME", home)
	_ = os.Unsetenv("TOWERBOT_TOKEN")

	got, err := LoadEnvWithLocalBinFallback("TOWERBOT_TOKEN")
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if got != "token-from-file" {
		t.Fatalf("token = %q, want value from fallback file", got)
	}

	// An already-exported token wins over the file.
	t.Setenv("TOWERBOT_TOKEN", "token-from-env")
	got, err = LoadEnvWithLocalBinFallback("TOWERBOT_TOKEN")
	if err != nil {
		t.Fatalf("load token: %v", err)
	}
	if got != "token-from-env" {
		t.Fatalf("token = %q, want exported value", got)
	}
}

func TestLoadEnvWithLocalBinFallbackMissing(t *testing.T) {
	home := writeFallbackEnv(t, "UNRELATED=1\n")
	t.Setenv("HOME", home)
	_ = os.Unsetenv("TOWERBOT_TOKEN")

	if _, err := LoadEnvWithLocalBinFallback("TOWERBOT_TOKEN"); err == nil {
		t.Fatal("expected error when the token is set nowhere")
	}
}

func TestEnvBool(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"YeS", true},
		{" on ", true},
		{"0", false},
		{"off", false},
		{"", false},
	}
	for _, c := range cases {
		t.Setenv("TOWERBOT_FLAG", c.value)
		if got := EnvBool("TOWERBOT_FLAG"); got != c.want {
			t.Errorf("EnvBool(%q) = %v, want %v", c.value, got, c.want)
		}
	}
}

func TestEnvString(t *testing.T) {
	t.Setenv("TOWERBOT_THEME", "deadzone")
	if got := EnvString("TOWERBOT_THEME", "default"); got != "deadzone" {
		t.Fatalf("got %q, want deadzone", got)
	}

	// Blank and whitespace-only values fall back.
	t.Setenv("TOWERBOT_THEME", "   ")
	if got := EnvString("TOWERBOT_THEME", "default"); got != "default" {
		t.Fatalf("got %q, want the fallback", got)
	}
}

func TestEnvInt64(t *testing.T) {
	t.Setenv("TOWERBOT_PORT", "2022")
	if got := EnvInt64("TOWERBOT_PORT", 22); got != 2022 {
		t.Fatalf("got %d, want 2022", got)
	}

	t.Setenv("TOWERBOT_PORT", "not-a-port")
	if got := EnvInt64("TOWERBOT_PORT", 22); got != 22 {
		t.Fatalf("got %d, want the fallback on a parse failure", got)
	}
}
