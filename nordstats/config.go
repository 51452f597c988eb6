package nordstats

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"gopkg.in/yaml.v3"
)

// DecodeConfig decodes a config document. Files named .yaml or .yml are YAML, anything else is JSON.
func DecodeConfig(name string, data []byte, out any) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return nil
}

// readSystemConfig loads the config file of a system through the game server. An empty file name leaves
// out untouched so the system runs on its defaults.
func readSystemConfig(logger runtime.Logger, nk runtime.NakamaModule, config SystemConfig, out any) error {
	name := config.GetConfigFile()
	if name == "" {
		logger.Info("No config file for system type %v, using defaults", config.GetType())
		return nil
	}

	file, err := nk.ReadFile(name)
	if err != nil {
		logger.Error("Failed to read config file %s: %v", name, err)
		return err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read config file contents: %v", err)
		return err
	}
	if err := DecodeConfig(name, data, out); err != nil {
		logger.Error("Failed to parse %v system config: %v", config.GetType(), err)
		return err
	}
	return nil
}
