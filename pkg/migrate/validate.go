package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var migrationFile = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDirs checks every directory on its own (file names, unique
// versions, goose Up/Down markers) and then that all directories ship the
// same versions. A schema change that lands for one dialect only is an error.
func ValidateDirs(dirs ...string) error {
	if len(dirs) == 0 {
		return errors.New("at least one migration directory is required")
	}
	var reference []string
	for i, dir := range dirs {
		versions, err := validateDir(dir)
		if err != nil {
			return err
		}
		if i == 0 {
			reference = versions
			continue
		}
		if strings.Join(versions, ",") != strings.Join(reference, ",") {
			return fmt.Errorf("%s and %s ship different migration versions", dirs[0], dir)
		}
	}
	return nil
}

func validateDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	byVersion := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		match := migrationFile.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("%s: file name must be YYYYMMDDHHMMSS_name.sql", filepath.Join(dir, name))
		}
		if prev, dup := byVersion[match[1]]; dup {
			return nil, fmt.Errorf("%s: version %s used by %s and %s", dir, match[1], prev, name)
		}
		byVersion[match[1]] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return nil, fmt.Errorf("%s: missing %q", filepath.Join(dir, name), marker)
			}
		}
	}

	versions := make([]string, 0, len(byVersion))
	for v := range byVersion {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}
