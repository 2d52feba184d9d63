package validation

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/store_v1.json
var storeSchemaV1 []byte

var (
	storeSchemaOnce sync.Once
	storeSchema     *gojsonschema.Schema
	storeSchemaErr  error
)

func compiledStoreSchema() (*gojsonschema.Schema, error) {
	storeSchemaOnce.Do(func() {
		storeSchema, storeSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(storeSchemaV1))
	})
	return storeSchema, storeSchemaErr
}

// ValidateDocument checks the structure of a persisted chain document before
// it is decoded. It returns a descriptive error for malformed JSON, missing
// fields or wrong field types.
func ValidateDocument(data []byte) error {
	schema, err := compiledStoreSchema()
	if err != nil {
		return fmt.Errorf("load store schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("malformed store document: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("store document failed schema validation: %s", strings.Join(msgs, "; "))
	}
	return nil
}
