package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
)

// Versions are UTC timestamps (YYYYMMDDHHMMSS), never sequential numbers.
const minTimestampVersion int64 = 20000101000000

var migrationTemplate = template.Must(template.New("audiophile.sql").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.CamelName}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.CamelName}}
-- +goose StatementEnd
`))

// NewMigration writes an empty timestamped SQL migration into dir and
// returns its path.
func NewMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("migrations dir is required")
	}
	if strings.IndexFunc(name, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsNumber(r) }) < 0 {
		return "", fmt.Errorf("migration name %q has no letters or digits", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	before, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return "", err
	}

	goose.SetSequential(false)
	goose.SetBaseFS(nil)
	if err := goose.CreateWithTemplate(nil, dir, migrationTemplate, name, "sql"); err != nil {
		return "", err
	}

	after, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return "", err
	}
	existing := make(map[string]bool, len(before))
	for _, p := range before {
		existing[p] = true
	}
	for _, p := range after {
		if !existing[p] {
			return p, nil
		}
	}
	return "", errors.New("goose reported success but wrote no file")
}

// Check lints a migrations directory, or the compiled-in set when dir is
// empty. Every problem is reported, not just the first.
func Check(dir string) error {
	var fsys fs.FS
	root := "."
	if dir == "" {
		fsys, root = embedded, embeddedDir
	} else {
		fsys = os.DirFS(dir)
	}

	files, err := fs.Glob(fsys, path.Join(root, "*.sql"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}

	var problems error
	seen := make(map[int64]string, len(files))
	for _, file := range files {
		name := path.Base(file)
		version, err := goose.NumericComponent(name)
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if version < minTimestampVersion {
			problems = multierr.Append(problems, fmt.Errorf("%s: version must be a YYYYMMDDHHMMSS timestamp", name))
		}
		if prev, dup := seen[version]; dup {
			problems = multierr.Append(problems, fmt.Errorf("%s: version %d already used by %s", name, version, prev))
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			problems = multierr.Append(problems, err)
			continue
		}
		for _, section := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), section) {
				problems = multierr.Append(problems, fmt.Errorf("%s: missing %q section", name, section))
			}
		}
	}
	return problems
}
