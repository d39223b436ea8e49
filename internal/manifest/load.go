package manifest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shaharia-lab/tag-backend/internal/schemas"
)

// Load reads and parses the schema manifest at path. Manifests are JSON by
// default; a .yaml/.yml path is parsed as YAML instead, for operators who
// keep the manifest alongside YAML deployment config. A missing or
// unparsable file is not fatal: the system starts with an empty manifest
// (no tables, no examples) and logs the condition rather than refusing
// to boot.
func Load(logger *slog.Logger, path string) *schemas.SchemaManifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("reading schema manifest", "path", path, "error", err)
		} else {
			logger.Warn("schema manifest not found, starting empty", "path", path)
		}
		return emptyManifest()
	}

	var m schemas.SchemaManifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		logger.Error("parsing schema manifest", "path", path, "error", err)
		return emptyManifest()
	}
	if m.Tables == nil {
		m.Tables = map[string]schemas.TableManifest{}
	}
	return &m
}

func emptyManifest() *schemas.SchemaManifest {
	return &schemas.SchemaManifest{Tables: map[string]schemas.TableManifest{}}
}
