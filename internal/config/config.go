// Package config loads the simulator's folder layout from a JSON config
// file. The config is an explicit value threaded into builders and the
// engine; nothing reads it ambiently.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is where commands look for the config when no -config
// flag is given.
const DefaultConfigPath = "config.json"

// Config is the folder layout for raw inputs, the cache, simulation
// results and the error sink.
type Config struct {
	DataFolder    string `json:"data_folder"`
	CacheFolder   string `json:"cache_folder"`
	ResultsFolder string `json:"results_folder"`
	ErrorsFolder  string `json:"errors_folder"`
	ErrorsFile    string `json:"errors_file"`
}

// Default returns a config rooted at the given base directory.
func Default(base string) Config {
	return Config{
		DataFolder:    filepath.Join(base, "data"),
		CacheFolder:   filepath.Join(base, "cache"),
		ResultsFolder: filepath.Join(base, "results"),
		ErrorsFolder:  filepath.Join(base, "errors"),
		ErrorsFile:    "errors.csv",
	}
}

// Load reads the config file at path, filling unset fields from
// Default("."). A missing file is an error: every command needs to know
// where its folders live.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default(".")
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// EnsureFolders creates the cache, results and errors folders if they do
// not exist. The data folder is the operator's; it is never created here.
func (c Config) EnsureFolders() error {
	for _, dir := range []string{c.CacheFolder, c.ResultsFolder, c.ErrorsFolder} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
