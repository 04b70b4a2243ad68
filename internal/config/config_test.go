package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/enclave/internal/policy"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		KeyDBPath, KeyListenAddr, KeyMaxOwners, KeyMaxItemsPerOwner, KeyMaxPayloadChars,
		KeyMaxGrantees, KeyKDFURL, KeyKDFMasterKey, KeyDeriveRPM, KeyDeriveRPMPerCaller,
		KeyInsecureDevKey,
	} {
		env := EnvPrefix + "_" + strings.ToUpper(key)
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultListen, cfg.ListenAddr)
	assert.Equal(t, policy.DefaultLimits(), cfg.Limits)
	assert.Empty(t, cfg.KDFURL)
	assert.Len(t, cfg.KDFMasterKey, 32)
	assert.True(t, cfg.UsingDefaultMasterKey())
	assert.Equal(t, DefaultRPM, cfg.DeriveRPM)
}

func TestLoad_DefaultMasterKeyIsStablePerPath(t *testing.T) {
	clearEnv(t)

	a, err := Load(New())
	require.NoError(t, err)
	b, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, a.KDFMasterKey, b.KDFMasterKey)

	t.Setenv("ENCLAVE_DB_PATH", "/var/lib/enclave/other.db")
	c, err := Load(New())
	require.NoError(t, err)
	assert.NotEqual(t, a.KDFMasterKey, c.KDFMasterKey)
}

func TestCheckServing(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.CheckServing(), ErrDefaultMasterKey)

	t.Setenv("ENCLAVE_INSECURE_DEV_KEY", "true")
	cfg, err = Load(New())
	require.NoError(t, err)
	assert.NoError(t, cfg.CheckServing())

	clearEnv(t)
	t.Setenv("ENCLAVE_KDF_MASTER_KEY", strings.Repeat("cd", 32))
	cfg, err = Load(New())
	require.NoError(t, err)
	assert.NoError(t, cfg.CheckServing())

	clearEnv(t)
	t.Setenv("ENCLAVE_KDF_URL", "https://kdf.internal")
	cfg, err = Load(New())
	require.NoError(t, err)
	assert.NoError(t, cfg.CheckServing())
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCLAVE_MAX_GRANTEES", "5")
	t.Setenv("ENCLAVE_KDF_MASTER_KEY", strings.Repeat("ab", 32))
	t.Setenv("ENCLAVE_LISTEN_ADDR", ":9000")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limits.MaxGrantees)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.False(t, cfg.UsingDefaultMasterKey())
	assert.Equal(t, byte(0xab), cfg.KDFMasterKey[0])
}

func TestLoad_RemoteServiceNeedsNoMasterKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENCLAVE_KDF_URL", "https://kdf.internal:8443")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Nil(t, cfg.KDFMasterKey)
	assert.False(t, cfg.UsingDefaultMasterKey())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, env, value, want string
	}{
		{"bad master key", "ENCLAVE_KDF_MASTER_KEY", "zz", "kdf_master_key"},
		{"short master key", "ENCLAVE_KDF_MASTER_KEY", "abcd", "kdf_master_key"},
		{"zero limit", "ENCLAVE_MAX_OWNERS", "0", "limits must be positive"},
		{"bad url", "ENCLAVE_KDF_URL", "ftp://x", "kdf_url"},
		{"negative rate", "ENCLAVE_DERIVE_RPM", "-1", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.env, tt.value)

			_, err := Load(New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "enclave.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /tmp/from-file.db\nmax_items_per_owner: 7\n"), 0o600))

	v := New()
	require.NoError(t, ReadFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, 7, cfg.Limits.MaxItemsPerOwner)
}

func TestReadFile_MissingExplicitPath(t *testing.T) {
	err := ReadFile(New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestReadFile_SearchMissIsFine(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	assert.NoError(t, ReadFile(New(), ""))
}
