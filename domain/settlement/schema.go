package settlement

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

const datePattern = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`

func ptr[T any](v T) *T { return &v }

func str(pattern string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", MinLength: ptr(1), Pattern: pattern}
}

// documentSchema describes the structure of a queue message. Amounts are
// checked as JSON numbers here and parsed exactly from their literal text
// afterwards.
func documentSchema() *jsonschema.Schema {
	line := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"orgSubUnit", "personId", "amount", "periodFrom", "periodTo", "categoryCode"},
		Properties: map[string]*jsonschema.Schema{
			"orgSubUnit":   str(""),
			"personId":     str(`^[0-9]{11}$`),
			"amount":       {Type: "number"},
			"periodFrom":   str(datePattern),
			"periodTo":     str(datePattern),
			"categoryCode": str(""),
		},
	}

	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"header", "lines"},
		Properties: map[string]*jsonschema.Schema{
			"header": {
				Type:     "object",
				Required: []string{"orgNumber", "bankAccount", "totalAmount", "valueDate", "lineCount"},
				Properties: map[string]*jsonschema.Schema{
					"orgNumber":   str(`^[0-9]{9}$`),
					"bankAccount": str(`^[0-9]{11}$`),
					"totalAmount": {Type: "number"},
					"valueDate":   str(datePattern),
					"lineCount":   {Type: "integer", Minimum: ptr(0.0)},
				},
			},
			"lines": {
				Type:     "array",
				Items:    line,
				MinItems: ptr(1),
			},
		},
	}
}

var (
	resolvedOnce   sync.Once
	resolvedSchema *jsonschema.Resolved
	resolveErr     error
)

func resolved() (*jsonschema.Resolved, error) {
	resolvedOnce.Do(func() {
		resolvedSchema, resolveErr = documentSchema().Resolve(nil)
	})
	return resolvedSchema, resolveErr
}
