package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	DataDir string

	// Homeserver
	DefaultHomeserver string

	// HTTP
	HTTPTimeout     time.Duration
	HTTPMaxBodySize int64

	// Login throttle
	LoginRatePerMin int
	LoginBurst      int

	// Sync
	InitialSyncLimit int
	SyncTimeout      time.Duration

	// Device
	DeviceName string

	// Theme
	SchemePollInterval time.Duration

	// Diagnostics
	DiagListenAddr string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// すべての項目はデフォルト値を持ち、未設定でもエラーにならない。
// デスクトップクライアントは設定なしで起動できる必要がある。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DataDir = getEnvString("KAIWA_DATA_DIR", defaultDataDir())
	cfg.DefaultHomeserver = getEnvString("KAIWA_HOMESERVER", "matrix.org")
	cfg.HTTPTimeout = getEnvDuration("KAIWA_HTTP_TIMEOUT", 15*time.Second)
	cfg.HTTPMaxBodySize = getEnvInt64("KAIWA_HTTP_MAX_BODY_SIZE", 1048576)
	cfg.LoginRatePerMin = getEnvInt("KAIWA_LOGIN_RATE_PER_MIN", 6)
	cfg.LoginBurst = getEnvInt("KAIWA_LOGIN_BURST", 3)
	cfg.InitialSyncLimit = getEnvInt("KAIWA_INITIAL_SYNC_LIMIT", 10)
	cfg.SyncTimeout = getEnvDuration("KAIWA_SYNC_TIMEOUT", 30*time.Second)
	cfg.DeviceName = getEnvString("KAIWA_DEVICE_NAME", defaultDeviceName())
	cfg.SchemePollInterval = getEnvDuration("KAIWA_SCHEME_POLL_INTERVAL", 5*time.Second)
	cfg.DiagListenAddr = getEnvString("KAIWA_DIAG_ADDR", "127.0.0.1:9978")
	cfg.LogLevel = getEnvString("KAIWA_LOG_LEVEL", "info")

	return cfg, nil
}

// defaultDataDir はストアファイルの既定配置先を返す。
// OSのユーザー設定ディレクトリ配下のkaiwaディレクトリを使用する。
// 解決できない環境ではカレントディレクトリにフォールバックする。
func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(base, "kaiwa")
}

// defaultDeviceName はログイン時に登録するデバイス表示名を返す。
func defaultDeviceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "Kaiwa Desktop"
	}
	return "Kaiwa Desktop (" + host + ")"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
