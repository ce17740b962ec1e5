/*
Package configs is responsible for loading and parsing configuration settings.

Values come from operating system environment variables, with a local .env
file honored when present. The same config struct serves both binaries:
the terminal client reads the backend endpoints, the dev server reads the
listen port and allowed origins.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig contains all configuration parameters required to run.
type AppConfig struct {
	// General settings
	Environment string

	// Client settings
	APIBaseURL string
	SocketURL  string

	// Dev server settings
	Port           int
	AllowedOrigins []string
}

// LoadConfig reads the configuration from environment variables, loading a
// .env file first if one exists. Defaults are applied per value; type
// conversions are validated. It returns the AppConfig and any error
// encountered.
func LoadConfig() (*AppConfig, error) {
	// best effort; absence of a .env file is not an error
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8080/api/v1"
	}

	cfg.SocketURL = os.Getenv("SOCKET_URL")
	if cfg.SocketURL == "" {
		cfg.SocketURL = deriveSocketURL(cfg.APIBaseURL)
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	return cfg, nil
}

// deriveSocketURL maps the REST base URL to the websocket endpoint served
// next to it (http -> ws, https -> wss, /api/v1 -> /ws).
func deriveSocketURL(apiBaseURL string) string {
	socketURL := apiBaseURL

	switch {
	case strings.HasPrefix(socketURL, "https://"):
		socketURL = "wss://" + strings.TrimPrefix(socketURL, "https://")
	case strings.HasPrefix(socketURL, "http://"):
		socketURL = "ws://" + strings.TrimPrefix(socketURL, "http://")
	}

	if idx := strings.Index(socketURL, "/api"); idx != -1 {
		socketURL = socketURL[:idx]
	}

	return socketURL + "/ws"
}
