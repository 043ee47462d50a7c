package migration

import (
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
	"testing"

	"github.com/smallbiznis/credits/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			require.True(t, names[down], "missing %s", down)
		}
	}

	src, err := newSource()
	require.NoError(t, err)
	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)
	next, err := src.Next(first)
	require.NoError(t, err)
	require.Equal(t, uint(2), next)
}

func TestRunRequiresHandle(t *testing.T) {
	_, err := Run(nil, nil)
	require.Error(t, err)
}

func TestSQLiteSchemaMatchesMigrations(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	var migrations []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(embeddedMigrations, path.Join(migrationsDir, entry.Name()))
		require.NoError(t, err)
		migrations = append(migrations, string(body))
	}

	want := describeSchema(t, strings.Join(migrations, "\n"))
	got := describeSchema(t, strings.Join(testutil.Schema(), ";\n"))

	require.NotEmpty(t, want.tables)
	assert.Equal(t, want.tables, got.tables)
	assert.Equal(t, want.uniqueIndexes, got.uniqueIndexes)
}

type schemaShape struct {
	tables        map[string][]string
	uniqueIndexes []string
}

var (
	createTablePattern  = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)\s*\(`)
	uniqueIndexPattern  = regexp.MustCompile(`(?i)CREATE\s+UNIQUE\s+INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`)
	tableConstraintWord = map[string]bool{"primary": true, "unique": true, "constraint": true, "check": true, "foreign": true}
)

// describeSchema reduces DDL to table columns and unique index names, the
// parts both dialects must agree on.
func describeSchema(t *testing.T, ddl string) schemaShape {
	t.Helper()

	shape := schemaShape{tables: map[string][]string{}}
	for _, loc := range createTablePattern.FindAllStringSubmatchIndex(ddl, -1) {
		name := strings.ToLower(ddl[loc[2]:loc[3]])
		body := tableBody(t, ddl, loc[1])

		var columns []string
		for _, item := range splitTopLevel(body) {
			fields := strings.Fields(item)
			if len(fields) == 0 || tableConstraintWord[strings.ToLower(fields[0])] {
				continue
			}
			columns = append(columns, strings.ToLower(fields[0]))
		}
		sort.Strings(columns)
		shape.tables[name] = columns
	}
	for _, match := range uniqueIndexPattern.FindAllStringSubmatch(ddl, -1) {
		shape.uniqueIndexes = append(shape.uniqueIndexes, strings.ToLower(match[1]))
	}
	sort.Strings(shape.uniqueIndexes)
	return shape
}

// tableBody returns the text between the opening parenthesis ending at start
// and its matching close.
func tableBody(t *testing.T, ddl string, start int) string {
	t.Helper()

	depth := 1
	for i := start; i < len(ddl); i++ {
		switch ddl[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return ddl[start:i]
			}
		}
	}
	t.Fatalf("unterminated CREATE TABLE at offset %d", start)
	return ""
}

func splitTopLevel(body string) []string {
	var (
		items []string
		depth int
		last  int
	)
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				items = append(items, body[last:i])
				last = i + 1
			}
		}
	}
	return append(items, body[last:])
}
