// Package config loads the bot configuration from a key=value file with
// environment variable overrides.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the bot needs to talk to the gateway.
type Config struct {
	Host              string
	Port              int
	ClientID          int64
	Account           string
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	ReconnectInterval time.Duration
	// MarketDataType: 1 realtime, 3 delayed.
	MarketDataType int64
	MetricsAddr    string
	WatchlistPath  string
}

// Default returns the configuration for a paper-trading gateway on
// localhost.
func Default() *Config {
	return &Config{
		Host:              "127.0.0.1",
		Port:              7497,
		ClientID:          1,
		ConnectTimeout:    10 * time.Second,
		RequestTimeout:    15 * time.Second,
		ReconnectInterval: 5 * time.Second,
		MarketDataType:    1,
		MetricsAddr:       ":9090",
	}
}

// Load reads a key=value config file. Blank lines and # comments are
// skipped; unknown keys are an error so typos surface early. Environment
// variables (TWSBOT_HOST, TWSBOT_PORT, ...) override file values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		line := 0
		for scanner.Scan() {
			line++
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			parts := strings.SplitN(text, "=", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("config line %d: expected key=value", line)
			}
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if err := cfg.set(key, value); err != nil {
				return nil, fmt.Errorf("config line %d: %w", line, err)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "host":
		c.Host = value
	case "port":
		p, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		c.Port = p
	case "client_id":
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("client_id: %w", err)
		}
		c.ClientID = id
	case "account":
		c.Account = value
	case "connect_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	case "request_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
		c.RequestTimeout = d
	case "reconnect_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("reconnect_interval: %w", err)
		}
		c.ReconnectInterval = d
	case "market_data_type":
		t, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("market_data_type: %w", err)
		}
		c.MarketDataType = t
	case "metrics_addr":
		c.MetricsAddr = value
	case "watchlist":
		c.WatchlistPath = value
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

// envKeys maps environment variable suffixes onto config keys.
var envKeys = map[string]string{
	"HOST":               "host",
	"PORT":               "port",
	"CLIENT_ID":          "client_id",
	"ACCOUNT":            "account",
	"CONNECT_TIMEOUT":    "connect_timeout",
	"REQUEST_TIMEOUT":    "request_timeout",
	"RECONNECT_INTERVAL": "reconnect_interval",
	"MARKET_DATA_TYPE":   "market_data_type",
	"METRICS_ADDR":       "metrics_addr",
	"WATCHLIST":          "watchlist",
}

func (c *Config) applyEnv() error {
	for suffix, key := range envKeys {
		if v, ok := os.LookupEnv("TWSBOT_" + suffix); ok {
			if err := c.set(key, v); err != nil {
				return fmt.Errorf("env TWSBOT_%s: %w", suffix, err)
			}
		}
	}
	return nil
}

// LoadWatchlist reads one symbol per line, skipping blanks and # comments.
// Symbols are upper-cased.
func LoadWatchlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open watchlist: %w", err)
	}
	defer f.Close()

	var symbols []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbols = append(symbols, strings.ToUpper(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return symbols, nil
}
