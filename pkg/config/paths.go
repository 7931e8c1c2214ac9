package config

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the application name
	AppName = "signaldesk"

	// AppDirName is the directory name for app data
	AppDirName = ".signaldesk"
)

// GetAppDir returns the application data directory (~/.signaldesk)
func GetAppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, AppDirName), nil
}

// GetDataDir returns the directory holding the file record store
func GetDataDir() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "data"), nil
}

// GetRulesDir returns the default directory scanned by `rules import`
func GetRulesDir() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "rules"), nil
}

// GetConfigPath returns the config file path, honoring SIGNALDESK_CONFIG
func GetConfigPath() (string, error) {
	if p := os.Getenv("SIGNALDESK_CONFIG"); p != "" {
		return p, nil
	}
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, "config.yaml"), nil
}

// expandHome replaces a leading ~ with the home directory
func expandHome(path string) string {
	if path == "~" || len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
