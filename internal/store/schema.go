package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentic-research/commentprep/internal/record"
)

// Table is the single table holding all comments.
const Table = "comments"

var columnTypes = []struct{ name, typ string }{
	{"score_hidden", "INT"},
	{"name", "TEXT"},
	{"link_id", "TEXT"},
	{"body", "TEXT"},
	{"sanitized_body", "TEXT"},
	{"downs", "INT"},
	{"created_utc", "INT"},
	{"score", "INT"},
	{"author", "TEXT"},
	{"distinguished", "TEXT"},
	{"id", "TEXT"},
	{"archived", "INT"},
	{"parent_id", "TEXT"},
	{"subreddit", "TEXT"},
	{"author_flair_css_class", "TEXT"},
	{"author_flair_text", "TEXT"},
	{"gilded", "INT"},
	{"retrieved_on", "INT"},
	{"ups", "INT"},
	{"controversiality", "INT"},
	{"subreddit_id", "TEXT"},
	{"edited", "INT"},
	{"is_locked", "INT"},
}

// sanitizedArg is the position of sanitized_body in record.Values.
var sanitizedArg = slices.Index(record.Columns, "sanitized_body")

// createTableSQL has no primary key and no indexes: rowid is the store-native
// key, and secondary indexes are built only after the bulk load.
func createTableSQL() string {
	defs := make([]string, len(columnTypes))
	for i, c := range columnTypes {
		defs[i] = c.name + " " + c.typ
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Table, strings.Join(defs, ", "))
}

// Index is a single-column secondary index over the comments table.
type Index struct {
	Name   string
	Column string
}

func (ix Index) createSQL(ifAbsent bool) string {
	clause := ""
	if ifAbsent {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE INDEX %s%s ON %s (%s)", clause, ix.Name, Table, ix.Column)
}

func knownColumn(name string) bool {
	for _, c := range columnTypes {
		if c.name == name {
			return true
		}
	}
	return false
}
