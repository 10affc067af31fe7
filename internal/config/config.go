// Package config loads the process-wide settings once at startup.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hossein1376/walletauth/enigma"
)

const (
	CipherAESCBC   = "aes-256-cbc"
	CipherXChaCha  = "xchacha20-poly1305"
	IVModeRandom   = "random"
	IVModeFixed    = "fixed"
	LogFormatText  = "text"
	LogFormatJSON  = "json"
	defaultPort    = 4000
	defaultTimeout = 10 * time.Second
)

var (
	ErrMissing = errors.New("missing required environment variables")
	ErrInvalid = errors.New("invalid configuration")
)

// Config is immutable once loaded; share it by value or pointer freely.
type Config struct {
	Salt           string
	Key            []byte
	IV             []byte
	Cluster        string
	MinBalance     uint64
	Port           int
	AllowedOrigins []string
	TokenCipher    string
	TokenIVMode    string
	LogLevel       slog.Level
	LogFormat      string
	RPCTimeout     time.Duration
}

// Load reads a .env file if one exists and then the process environment.
// Variables already present in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. All missing mandatory
// variables are reported together.
func FromEnv(getenv func(string) string) (*Config, error) {
	var missing []string
	// Values are returned as set. SALT is key material, so surrounding
	// whitespace is kept.
	required := func(name string) string {
		v := getenv(name)
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
		return v
	}
	cfg := &Config{
		Salt:    required("SALT"),
		Cluster: strings.TrimSpace(required("CLUSTER")),
	}
	keyHex, ivHex := required("KEY"), required("IV")
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	var err error
	if cfg.Key, err = decodeHex("KEY", keyHex, enigma.KeySize); err != nil {
		return nil, err
	}
	if cfg.IV, err = decodeHex("IV", ivHex, enigma.IVSize); err != nil {
		return nil, err
	}

	if cfg.MinBalance, err = parseUint(getenv("MIN_BALANCE")); err != nil {
		return nil, fmt.Errorf("%w: MIN_BALANCE: %w", ErrInvalid, err)
	}
	cfg.Port = defaultPort
	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		if cfg.Port, err = strconv.Atoi(v); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
			return nil, fmt.Errorf("%w: PORT %q", ErrInvalid, v)
		}
	}

	cfg.AllowedOrigins = []string{"*"}
	if v := strings.TrimSpace(getenv("ALLOWED_ORIGINS")); v != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	cfg.TokenCipher = withDefault(getenv("TOKEN_CIPHER"), CipherAESCBC)
	if cfg.TokenCipher != CipherAESCBC && cfg.TokenCipher != CipherXChaCha {
		return nil, fmt.Errorf("%w: TOKEN_CIPHER %q", ErrInvalid, cfg.TokenCipher)
	}
	cfg.TokenIVMode = withDefault(getenv("TOKEN_IV_MODE"), IVModeRandom)
	if cfg.TokenIVMode != IVModeRandom && cfg.TokenIVMode != IVModeFixed {
		return nil, fmt.Errorf("%w: TOKEN_IV_MODE %q", ErrInvalid, cfg.TokenIVMode)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(withDefault(getenv("LOG_LEVEL"), "info"))); err != nil {
		return nil, fmt.Errorf("%w: LOG_LEVEL: %w", ErrInvalid, err)
	}
	cfg.LogFormat = withDefault(getenv("LOG_FORMAT"), LogFormatText)
	if cfg.LogFormat != LogFormatText && cfg.LogFormat != LogFormatJSON {
		return nil, fmt.Errorf("%w: LOG_FORMAT %q", ErrInvalid, cfg.LogFormat)
	}

	cfg.RPCTimeout = defaultTimeout
	if v := strings.TrimSpace(getenv("RPC_TIMEOUT")); v != "" {
		if cfg.RPCTimeout, err = time.ParseDuration(v); err != nil || cfg.RPCTimeout <= 0 {
			return nil, fmt.Errorf("%w: RPC_TIMEOUT %q", ErrInvalid, v)
		}
	}

	return cfg, nil
}

func (c *Config) Cipher() (enigma.Cipher, error) {
	switch c.TokenCipher {
	case CipherXChaCha:
		return enigma.NewEnigma(c.Key, []byte(c.Salt))
	default:
		return enigma.NewCBC(c.Key, c.IV, c.TokenIVMode == IVModeFixed)
	}
}

func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func decodeHex(name, v string, size int) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not hex: %w", ErrInvalid, name, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalid, name, size, len(b))
	}
	return b, nil
}

func parseUint(v string) (uint64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func withDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
