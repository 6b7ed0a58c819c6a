package mapping

import (
	"strings"

	"github.com/datalift/searchsync/internal/models"
)

// Fixed translation table from source column types to index field types.
// Unlisted types fall back to keyword, which keeps unknown columns filterable
// by exact match.
var pgToIndexType = map[string]string{
	"integer":                     "integer",
	"bigint":                      "long",
	"smallint":                    "short",
	"decimal":                     "double",
	"numeric":                     "double",
	"real":                        "float",
	"double precision":            "double",
	"character varying":           "keyword",
	"text":                        "text",
	"boolean":                     "boolean",
	"timestamp without time zone": "date",
	"timestamp with time zone":    "date",
	"date":                        "date",
	"jsonb":                       "object",
	"json":                        "object",
}

// keywordIgnoreAbove caps the keyword sub-field on analyzed text so oversized
// values do not blow up sort and aggregation structures.
const keywordIgnoreAbove = 256

// BuildMapping derives the index field mapping from a table schema. Text
// fields get a keyword sub-field so analyzed columns stay sortable and
// aggregatable.
func BuildMapping(schema models.SchemaMap) models.FieldMapping {
	properties := make(map[string]models.FieldType, len(schema.Columns))

	for _, col := range schema.Columns {
		indexType, ok := pgToIndexType[strings.ToLower(col.DataType)]
		if !ok {
			indexType = "keyword"
		}

		field := models.FieldType{Type: indexType}
		if indexType == "text" {
			field.Fields = map[string]models.FieldType{
				"keyword": {Type: "keyword", IgnoreAbove: keywordIgnoreAbove},
			}
		}
		properties[col.Name] = field
	}

	return models.FieldMapping{Properties: properties}
}
