package prompts

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// LoadJSONPrompt reads field from the first of dir/basename,
// dir/basename.json and dir/basename.txt holding a JSON object with a
// non-empty string there. fallback is returned when none does.
func LoadJSONPrompt(dir, basename, field, fallback string) string {
	candidates := []string{
		filepath.Join(dir, basename),
		filepath.Join(dir, basename+".json"),
		filepath.Join(dir, basename+".txt"),
	}

	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Error("failed to read prompt file", "path", path, "err", err)
			}
			continue
		}
		if !gjson.ValidBytes(raw) {
			slog.Error("prompt file is not valid JSON", "path", path)
			continue
		}

		val := gjson.GetBytes(raw, field)
		if val.Type == gjson.String && strings.TrimSpace(val.Str) != "" {
			slog.Info("loaded prompt", "name", basename, "path", path, "field", field, "chars", len(val.Str))
			return val.Str
		}
	}

	slog.Warn("prompt not found, using fallback", "name", basename)
	return fallback
}

// LoadDefault reads the bundled chat prompt file.
func LoadDefault(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read default prompt %s: %w", path, err)
	}

	return string(raw), nil
}
