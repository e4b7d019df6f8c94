// Package config loads prefixed settings from the environment, optionally
// seeded from a dotenv file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	mu      sync.RWMutex
	envFile string
)

// SetEnvFile points New at an explicit dotenv file. An empty path falls back
// to ./.env when it exists.
func SetEnvFile(path string) {
	mu.Lock()
	envFile = strings.TrimSpace(path)
	mu.Unlock()
}

func currentEnvFile() (path string, explicit bool) {
	mu.RLock()
	defer mu.RUnlock()
	if envFile != "" {
		return envFile, true
	}
	return defaultEnvFile, false
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New fills a T from variables named PREFIX_FIELD. Variables already set in
// the process win over the dotenv file.
func New[T any](prefix string) (*T, error) {
	path, explicit := currentEnvFile()
	if err := loadEnvFile(path, explicit); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", prefix, err)
	}
	return &conf, nil
}

func loadEnvFile(path string, explicit bool) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		return nil
	case err != nil:
		return fmt.Errorf("env file %s: %w", path, err)
	case info.IsDir():
		if explicit {
			return fmt.Errorf("env file %s is a directory", path)
		}
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read env file %s: %w", path, err)
	}
	for key, value := range v.AllSettings() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}
