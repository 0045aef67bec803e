package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationStub = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: %[2]s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- %[1]s: revert %[2]s
-- +goose StatementEnd
`

// CreateSQLMigration writes one stub per directory, all sharing the same
// version, so postgres and sqlite schemas advance together. Nothing is
// written when any target file already exists.
func CreateSQLMigration(now time.Time, name string, dirs ...string) ([]string, error) {
	if len(dirs) == 0 {
		return nil, errors.New("at least one migration directory is required")
	}
	slug := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	filename := now.UTC().Format(versionLayout) + "_" + slug + ".sql"

	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return nil, errors.New("migration directory is blank")
		}
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("migration already exists: %s", path)
		}
		paths = append(paths, path)
	}

	for i, path := range paths {
		if err := os.MkdirAll(dirs[i], 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dirs[i], err)
		}
		body := fmt.Sprintf(migrationStub, filepath.Base(dirs[i]), slug)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
	}
	return paths, nil
}
