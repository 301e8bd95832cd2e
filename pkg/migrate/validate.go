package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	// credit_transactions is append-only; corrections are new rows.
	ledgerRewriteRe = regexp.MustCompile(`(?i)\b(update\s+credit_transactions|delete\s+from\s+credit_transactions|truncate\s+(table\s+)?credit_transactions)\b`)
)

const (
	upMarker       = "-- +goose Up"
	downMarker     = "-- +goose Down"
	statementBegin = "-- +goose StatementBegin"
	statementEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks migration filenames, goose annotations and that no Up
// section rewrites ledger history.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	seen := map[string]string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}

		version := m[1]
		if prev, ok := seen[version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, name)
		}
		seen[version] = name

		full := filepath.Join(dir, name)
		b, err := os.ReadFile(full)
		if err != nil {
			return fmt.Errorf("read file %q: %w", full, err)
		}
		if err := validateSQL(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", name, err)
		}
	}

	return nil
}

func validateSQL(txt string) error {
	up := strings.Index(txt, upMarker)
	if up < 0 {
		return fmt.Errorf("missing %q", upMarker)
	}
	down := strings.Index(txt, downMarker)
	if down < 0 {
		return fmt.Errorf("missing %q", downMarker)
	}
	if down < up {
		return fmt.Errorf("%q must come before %q", upMarker, downMarker)
	}

	open := 0
	for _, line := range strings.Split(txt, "\n") {
		switch strings.TrimSpace(line) {
		case statementBegin:
			if open > 0 {
				return fmt.Errorf("nested %q", statementBegin)
			}
			open++
		case statementEnd:
			if open == 0 {
				return fmt.Errorf("%q without %q", statementEnd, statementBegin)
			}
			open--
		}
	}
	if open != 0 {
		return fmt.Errorf("unterminated %q", statementBegin)
	}

	if loc := ledgerRewriteRe.FindStringIndex(txt[up:down]); loc != nil {
		return fmt.Errorf("up section rewrites credit_transactions (%q); append correcting rows instead", txt[up+loc[0]:up+loc[1]])
	}
	return nil
}
