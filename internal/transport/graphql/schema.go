package graphql

import (
	_ "embed"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

//go:embed schema.graphql
var schemaSDL string

// schema is loaded once at startup; MustLoadSchema panics on an invalid SDL,
// which can only happen from a bad edit to schema.graphql.
var schema = gqlparser.MustLoadSchema(&ast.Source{
	Name:  "schema.graphql",
	Input: schemaSDL,
})

// Schema returns the parsed GraphQL schema.
func Schema() *ast.Schema {
	return schema
}
