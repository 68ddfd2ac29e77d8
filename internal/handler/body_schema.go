package handler

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

// bodySchema validates the raw shape of a request body before it is decoded.
type bodySchema struct {
	schema *jsonschema.Schema
}

func mustLoadBodySchema(name string) bodySchema {
	raw, err := schemaFiles.ReadFile("schemas/" + name)
	if err != nil {
		panic(fmt.Sprintf("read schema %s: %v", name, err))
	}

	url := "mem://schemas/" + name
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return bodySchema{schema: schema}
}

// check reports whether body is JSON matching the schema.
func (s bodySchema) check(body []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var document interface{}
	if err := decoder.Decode(&document); err != nil {
		return fmt.Errorf("malformed json: %w", err)
	}
	if decoder.More() {
		return fmt.Errorf("malformed json: trailing data")
	}
	return s.schema.Validate(document)
}
