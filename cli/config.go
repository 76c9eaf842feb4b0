package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/fahmaliyi/dotp/vault"
)

const (
	appName       = "dotp"
	vaultFilename = ".vault.dotp"
)

// Config is the on-disk config.toml.
type Config struct {
	VaultPath        string `mapstructure:"vault_path"`
	CloseOnCopy      bool   `mapstructure:"close_on_copy"`
	ClipboardCommand string `mapstructure:"clipboard_command"`
	Iterations       int    `mapstructure:"iterations"`
}

// Env holds the environment overrides.
type Env struct {
	Password  string `env:"DOTP_PASSWD"`
	VaultPath string `env:"DOTP_VAULT"`
}

func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, err
	}
	return e, nil
}

// ConfigDir is $XDG_CONFIG_HOME/dotp, falling back to ~/.config/dotp.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get home directory: %w", err)
	}
	return filepath.Join(home, ".config", appName), nil
}

// LoadConfig reads the config file at path, or config.toml in ConfigDir when
// path is empty. A missing default file is not an error.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("close_on_copy", false)
	v.SetDefault("iterations", vault.MinIterations)
	v.SetConfigType("toml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return Config{}, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return c, nil
}

// ResolveVaultPath picks the vault file: flag, then DOTP_VAULT, then the
// config file, then ./.vault.dotp if present, then the config directory.
func ResolveVaultPath(flag string, e Env, c Config) (string, error) {
	for _, p := range []string{flag, e.VaultPath, c.VaultPath} {
		if p != "" {
			return expandHome(p)
		}
	}
	if _, err := os.Stat(vaultFilename); err == nil {
		return filepath.Abs(vaultFilename)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, vaultFilename), nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
