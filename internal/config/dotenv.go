package config

import (
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotenvBestEffort loads the .env file next to configPath, or from the
// working directory when configPath is empty. Variables already set win and
// a missing or unreadable file is ignored.
func LoadDotenvBestEffort(configPath string) {
	if configPath != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))
		return
	}
	_ = godotenv.Load()
}
