package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift/searchsync/internal/models"
)

func schemaOf(pairs ...string) models.SchemaMap {
	var s models.SchemaMap
	for i := 0; i < len(pairs); i += 2 {
		s.Columns = append(s.Columns, models.ColumnDef{Name: pairs[i], DataType: pairs[i+1]})
	}
	return s
}

func TestBuildMappingTranslatesKnownTypes(t *testing.T) {
	m := BuildMapping(schemaOf(
		"id", "bigint",
		"qty", "smallint",
		"price", "numeric",
		"ratio", "real",
		"name", "character varying",
		"active", "boolean",
		"created_at", "timestamp with time zone",
		"payload", "jsonb",
	))

	assert.Equal(t, "long", m.Properties["id"].Type)
	assert.Equal(t, "short", m.Properties["qty"].Type)
	assert.Equal(t, "double", m.Properties["price"].Type)
	assert.Equal(t, "float", m.Properties["ratio"].Type)
	assert.Equal(t, "keyword", m.Properties["name"].Type)
	assert.Equal(t, "boolean", m.Properties["active"].Type)
	assert.Equal(t, "date", m.Properties["created_at"].Type)
	assert.Equal(t, "object", m.Properties["payload"].Type)
}

func TestBuildMappingTextGetsKeywordSubfield(t *testing.T) {
	m := BuildMapping(schemaOf("body", "text"))

	body := m.Properties["body"]
	assert.Equal(t, "text", body.Type)
	require.Contains(t, body.Fields, "keyword")
	assert.Equal(t, "keyword", body.Fields["keyword"].Type)
	assert.Equal(t, 256, body.Fields["keyword"].IgnoreAbove)
}

func TestBuildMappingUnknownTypeFallsBackToKeyword(t *testing.T) {
	m := BuildMapping(schemaOf("location", "geography", "ip", "inet"))

	assert.Equal(t, "keyword", m.Properties["location"].Type)
	assert.Equal(t, "keyword", m.Properties["ip"].Type)
	assert.Empty(t, m.Properties["location"].Fields)
}

func TestBuildMappingCaseInsensitive(t *testing.T) {
	m := BuildMapping(schemaOf("id", "BIGINT"))
	assert.Equal(t, "long", m.Properties["id"].Type)
}

func TestBuildMappingIsDeterministic(t *testing.T) {
	s := schemaOf("a", "text", "b", "integer")
	assert.Equal(t, BuildMapping(s), BuildMapping(s))
}
