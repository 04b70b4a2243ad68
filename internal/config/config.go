// Package config holds operator-level configuration for an enclave
// process: where the database lives, where to listen, capacity ceilings,
// and which key derivation service to use.
//
// Values come from, in increasing precedence: defaults, an optional config
// file (enclave.yaml), ENCLAVE_* environment variables, and command-line
// flags bound by the CLI.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"github.com/zeebo/blake3"

	"github.com/roach88/enclave/internal/keyderiv"
	"github.com/roach88/enclave/internal/policy"
)

// Viper keys. Each maps to an env var with the ENCLAVE_ prefix
// (e.g. "db_path" → ENCLAVE_DB_PATH) and to a field in enclave.yaml.
const (
	KeyDBPath             = "db_path"
	KeyListenAddr         = "listen_addr"
	KeyMaxOwners          = "max_owners"
	KeyMaxItemsPerOwner   = "max_items_per_owner"
	KeyMaxPayloadChars    = "max_payload_chars"
	KeyMaxGrantees        = "max_grantees"
	KeyKDFURL             = "kdf_url"
	KeyKDFMasterKey       = "kdf_master_key"
	KeyDeriveRPM          = "derive_rpm"
	KeyDeriveRPMPerCaller = "derive_rpm_per_caller"

	// KeyInsecureDevKey lets serve run on the path-derived master key.
	KeyInsecureDevKey = "insecure_dev_key"

	// KeyPrincipal is read by the CLI only: the principal that admin
	// commands act as.
	KeyPrincipal = "principal"
)

const (
	EnvPrefix      = "ENCLAVE"
	ConfigName     = "enclave"
	DefaultDBPath  = "enclave.db"
	DefaultListen  = "127.0.0.1:8420"
	DefaultRPM     = 600
	DefaultRPMUser = 60
)

// Config is the resolved operator configuration.
type Config struct {
	DBPath     string
	ListenAddr string
	Limits     policy.Limits

	// KDFURL is the remote key derivation service. Empty selects the
	// in-process reference service keyed by KDFMasterKey.
	KDFURL       string
	KDFMasterKey []byte

	DeriveRPM          int // 0 disables the global limit
	DeriveRPMPerCaller int // 0 disables the per-caller limit

	// InsecureDevKey allows serving with the path-derived master key.
	InsecureDevKey bool

	usingDefaultMasterKey bool
}

// New returns a viper instance with enclave's defaults, env binding and
// config file search path. The CLI binds its flags onto it.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName(ConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault(KeyDBPath, DefaultDBPath)
	v.SetDefault(KeyListenAddr, DefaultListen)
	v.SetDefault(KeyMaxOwners, policy.DefaultMaxOwners)
	v.SetDefault(KeyMaxItemsPerOwner, policy.DefaultMaxItemsPerOwner)
	v.SetDefault(KeyMaxPayloadChars, policy.DefaultMaxPayloadChars)
	v.SetDefault(KeyMaxGrantees, policy.DefaultMaxGrantees)
	v.SetDefault(KeyDeriveRPM, DefaultRPM)
	v.SetDefault(KeyDeriveRPMPerCaller, DefaultRPMUser)
	return v
}

// ReadFile loads path, or searches for enclave.yaml when path is empty.
// A missing searched-for file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBPath:     v.GetString(KeyDBPath),
		ListenAddr: v.GetString(KeyListenAddr),
		Limits: policy.Limits{
			MaxOwners:        v.GetInt(KeyMaxOwners),
			MaxItemsPerOwner: v.GetInt(KeyMaxItemsPerOwner),
			MaxPayloadChars:  v.GetInt(KeyMaxPayloadChars),
			MaxGrantees:      v.GetInt(KeyMaxGrantees),
		},
		KDFURL:             v.GetString(KeyKDFURL),
		DeriveRPM:          v.GetInt(KeyDeriveRPM),
		DeriveRPMPerCaller: v.GetInt(KeyDeriveRPMPerCaller),
		InsecureDevKey:     v.GetBool(KeyInsecureDevKey),
	}

	if raw := v.GetString(KeyKDFMasterKey); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil || len(key) != keyderiv.MasterKeySize {
			return nil, fmt.Errorf("invalid configuration: %s must be %d hex-encoded bytes", KeyKDFMasterKey, keyderiv.MasterKeySize)
		}
		cfg.KDFMasterKey = key
	} else if cfg.KDFURL == "" {
		cfg.KDFMasterKey = deriveDefaultMasterKey(cfg.DBPath)
		cfg.usingDefaultMasterKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// UsingDefaultMasterKey reports whether the local service master key was
// derived from the database path rather than configured.
func (c *Config) UsingDefaultMasterKey() bool {
	return c.usingDefaultMasterKey
}

// WarnIfDefaultKeys logs when the local master key was not configured.
func (c *Config) WarnIfDefaultKeys(log *slog.Logger) {
	if c.usingDefaultMasterKey {
		log.Warn("using a master key derived from the database path; set ENCLAVE_KDF_MASTER_KEY for anything but development")
	}
}

// ErrDefaultMasterKey is returned by CheckServing when the local service
// would run on the path-derived master key.
var ErrDefaultMasterKey = errors.New("refusing to serve with a master key derived from the database path; set " +
	KeyKDFMasterKey + " or " + KeyKDFURL + ", or pass --insecure-dev-key for development")

// CheckServing reports whether the configuration may back a network
// server. Anyone who knows the database path can compute the default
// master key, so it is refused unless InsecureDevKey is set.
func (c *Config) CheckServing() error {
	if c.usingDefaultMasterKey && !c.InsecureDevKey {
		return ErrDefaultMasterKey
	}
	return nil
}

// deriveDefaultMasterKey gives admin commands and `serve --insecure-dev-key`
// a stable key out of the box. It is predictable from the path and offers
// no secrecy.
func deriveDefaultMasterKey(dbPath string) []byte {
	key := make([]byte, keyderiv.MasterKeySize)
	blake3.DeriveKey("enclave default kdf master key", []byte(dbPath), key)
	return key
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("%s must be set", KeyDBPath)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("%s must be set", KeyListenAddr)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.KDFURL != "" {
		u, err := url.Parse(c.KDFURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an http(s) URL, got %q", KeyKDFURL, c.KDFURL)
		}
	}
	if c.DeriveRPM < 0 || c.DeriveRPMPerCaller < 0 {
		return fmt.Errorf("derive rate limits must not be negative")
	}
	return nil
}
