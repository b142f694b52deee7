package migration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// File is one SQL migration script on disk.
type File struct {
	Version   int64  // numeric prefix
	Prefix    string // numeric prefix as written, zero padding kept
	Name      string // descriptive name
	Direction string // "up" or "down"
	Path      string
}

// UnitName is the ledger name shared by the up and down files.
func (f File) UnitName() string { return f.Prefix + "_" + f.Name }

var migrationFilenameRegex = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// DiscoverFiles lists the migration scripts in dir ordered by version, then
// name, down before up. A missing directory yields no files.
func DiscoverFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []File{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		match := migrationFilenameRegex.FindStringSubmatch(e.Name())
		if len(match) != 4 {
			continue
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			// prefix overflows int64
			continue
		}
		files = append(files, File{
			Version:   version,
			Prefix:    match[1],
			Name:      match[2],
			Direction: match[3],
			Path:      filepath.Join(dir, e.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Direction < b.Direction
	})
	return files, nil
}

// Dir is a Source of SQL migrations: <version>_<name>.up.sql paired with
// <version>_<name>.down.sql.
type Dir string

// Migrations pairs the up and down files of each unit.
func (d Dir) Migrations() ([]Unit, error) {
	if d == "" {
		return nil, nil
	}
	files, err := DiscoverFiles(string(d))
	if err != nil {
		return nil, err
	}

	pairs := make(map[string]*sqlMigration)
	var order []string
	for _, f := range files {
		name := f.UnitName()
		m, ok := pairs[name]
		if !ok {
			m = &sqlMigration{}
			pairs[name] = m
			order = append(order, name)
		}
		if f.Direction == "up" {
			m.upPath = f.Path
		} else {
			m.downPath = f.Path
		}
	}

	units := make([]Unit, 0, len(order))
	for _, name := range order {
		m := pairs[name]
		if m.upPath == "" || m.downPath == "" {
			return nil, fmt.Errorf("migration %s in %s needs both .up.sql and .down.sql files", name, d)
		}
		units = append(units, Unit{Name: name, Migration: m})
	}
	sortUnits(units)
	return units, nil
}

type sqlMigration struct {
	upPath   string
	downPath string
}

func (m *sqlMigration) Up(ctx context.Context, s *Schema) error {
	return execFile(ctx, s, m.upPath)
}

func (m *sqlMigration) Down(ctx context.Context, s *Schema) error {
	return execFile(ctx, s, m.downPath)
}

func execFile(ctx context.Context, s *Schema, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", path, err)
	}
	for _, stmt := range splitStatements(string(data)) {
		if err := s.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// splitStatements splits a script on semicolons outside quotes, nested
// block comments and PostgreSQL dollar-quoted bodies. Comments are dropped.
func splitStatements(sql string) []string {
	var stmts []string
	var current strings.Builder
	var quote byte  // ', " or ` while inside a quoted run
	dollarTag := "" // $$ or $tag$ while inside a dollar-quoted body
	blockCommentDepth := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]

		if blockCommentDepth > 0 {
			switch {
			case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
				blockCommentDepth++
				i++
			case c == '*' && i+1 < len(sql) && sql[i+1] == '/':
				blockCommentDepth--
				i++
				if blockCommentDepth == 0 {
					current.WriteByte(' ')
				}
			}
			continue
		}

		if dollarTag != "" {
			if strings.HasPrefix(sql[i:], dollarTag) {
				current.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
				continue
			}
			current.WriteByte(c)
			continue
		}

		if quote != 0 {
			current.WriteByte(c)
			if c == quote {
				// doubled quote is an escaped quote
				if i+1 < len(sql) && sql[i+1] == quote {
					current.WriteByte(sql[i+1])
					i++
				} else {
					quote = 0
				}
			}
			continue
		}

		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			current.WriteByte(c)
		case c == '$':
			if tag, ok := parseDollarTag(sql, i); ok {
				current.WriteString(tag)
				i += len(tag) - 1
				dollarTag = tag
				continue
			}
			current.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			blockCommentDepth = 1
			i++
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return stmts
}

// parseDollarTag returns the $$ or $tag$ opener starting at sql[i].
// Positional parameters like $1 are not tags.
func parseDollarTag(sql string, i int) (string, bool) {
	if i+1 < len(sql) && sql[i+1] == '$' {
		return "$$", true
	}
	j := i + 1
	if j >= len(sql) || !isDollarTagStart(sql[j]) {
		return "", false
	}
	for j < len(sql) && isDollarTagChar(sql[j]) {
		j++
	}
	if j < len(sql) && sql[j] == '$' {
		return sql[i : j+1], true
	}
	return "", false
}

func isDollarTagStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDollarTagChar(c byte) bool {
	return isDollarTagStart(c) || (c >= '0' && c <= '9')
}
