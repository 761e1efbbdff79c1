package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Config_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "TripBoard", cfg.App.Name)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, filepath.Join("data", "trip_data.json"), cfg.Storage.DocumentPath())
	require.Equal(t, filepath.Join("data", "backups"), cfg.Storage.BackupDir)
	require.Equal(t, "trip_data_backup_", cfg.Storage.BackupPrefix)
	require.Equal(t, 20, cfg.Storage.MaxBackups)

	require.False(t, cfg.Remote.Enabled(), "no token means local backend")
	require.Equal(t, 15*time.Second, cfg.Remote.Timeout)
	require.Equal(t, 3, cfg.Remote.MaxRetries)
	require.True(t, cfg.Remote.MirrorLocal)
	require.False(t, cfg.Auth.Enabled)
}

func Test_Config_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("DATA_DIR", "/var/lib/tripboard")
	t.Setenv("MAX_BACKUPS", "5")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_OWNER", "family")
	t.Setenv("GITHUB_REPO", "hawaii-trip")
	t.Setenv("GITHUB_BRANCH", "data")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/var/lib/tripboard/backups", cfg.Storage.BackupDir)
	require.Equal(t, 5, cfg.Storage.MaxBackups)
	require.True(t, cfg.Remote.Enabled())
	require.Equal(t, "family/hawaii-trip:data/trip_data.json@data", cfg.Remote.Target())
}

func Test_Config_Validation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080},
			Storage: StorageConfig{DataDir: "data", DocumentFile: "trip_data.json", BackupPrefix: "b_", MaxBackups: 20},
			Remote:  RemoteConfig{Path: "data/trip_data.json", Timeout: time.Second},
		}
	}
	require.NoError(t, validateConfig(valid()))

	cases := map[string]func(cfg *Config){
		"zero max backups":      func(cfg *Config) { cfg.Storage.MaxBackups = 0 },
		"nested document file":  func(cfg *Config) { cfg.Storage.DocumentFile = "sub/trip.json" },
		"token without repo":    func(cfg *Config) { cfg.Remote.Token = "ghp_test" },
		"auth with weak secret": func(cfg *Config) { cfg.Auth = AuthConfig{Enabled: true, Secret: "short"} },
		"bad port":              func(cfg *Config) { cfg.Server.Port = 70000 },
		"negative retries": func(cfg *Config) {
			cfg.Remote = RemoteConfig{Token: "t", Owner: "o", Repo: "r", Path: "p", Timeout: time.Second, MaxRetries: -1}
		},
	}

	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		require.Error(t, validateConfig(cfg), name)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
}
