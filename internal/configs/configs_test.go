package configs

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("API_BASE_URL", "")
	t.Setenv("SOCKET_URL", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig err: %v", err)
	}

	if cfg.Environment != "development" {
		t.Fatalf("unexpected environment: %q", cfg.Environment)
	}
	if cfg.APIBaseURL != "http://localhost:8080/api/v1" {
		t.Fatalf("unexpected API base URL: %q", cfg.APIBaseURL)
	}
	if cfg.SocketURL != "ws://localhost:8080/ws" {
		t.Fatalf("unexpected socket URL: %q", cfg.SocketURL)
	}
	if cfg.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
}

func TestLoadConfigRejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for non-numeric PORT")
	}

	t.Setenv("PORT", "80")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for privileged port")
	}
}

func TestDeriveSocketURL(t *testing.T) {
	cases := []struct {
		api  string
		want string
	}{
		{"http://localhost:8080/api/v1", "ws://localhost:8080/ws"},
		{"https://chat.example.com/api/v1", "wss://chat.example.com/ws"},
		{"http://10.0.0.5:9000", "ws://10.0.0.5:9000/ws"},
	}

	for _, tc := range cases {
		if got := deriveSocketURL(tc.api); got != tc.want {
			t.Fatalf("deriveSocketURL(%q) = %q, want %q", tc.api, got, tc.want)
		}
	}
}

func TestAllowedOriginsParsing(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig err: %v", err)
	}

	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}
