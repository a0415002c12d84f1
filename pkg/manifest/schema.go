package manifest

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/wildland/wildland-go/pkg/wlerr"
)

var validatorOnce sync.Once
var validatorInstance *validator.Validate

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New(validator.WithRequiredStructEnabled())
	})
	return validatorInstance
}

// schemaCache memoizes the generated JSON-Schema document per Go type, so
// that repeated validation of the same object type (the common case,
// since a daemon loads many containers) doesn't re-reflect the type.
var schemaCache sync.Map // reflect type name -> *jsonschema.Schema

// Schema returns the JSON-Schema document for an object's Go
// representation, generating it on first use via struct tags/reflection
// and caching it thereafter.
func Schema(v any) *jsonschema.Schema {
	key := reflect.TypeOf(v).String()
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema)
	}
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	s := r.Reflect(v)
	schemaCache.Store(key, s)
	return s
}

// Validate decodes fields into v (a typed object struct) and validates it
// against Go struct tags (`validate:"..."`). A failing field is reported
// as a SchemaError carrying its dotted path.
func Validate(fields *Fields, v any) error {
	if err := fields.Decode(v); err != nil {
		return err
	}
	if err := getValidator().Struct(v); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			path := toDottedPath(fe.Namespace())
			return wlerr.New(wlerr.SchemaError, "field %q failed %q validation", fe.Field(), fe.Tag()).
				WithSchemaPath(path)
		}
		return wlerr.Wrap(wlerr.SchemaError, err, "schema validation failed")
	}
	return nil
}

// toDottedPath converts a validator namespace ("Container.Paths[0].Value")
// into a lowercase dotted schema path ("paths.0.value").
func toDottedPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	// Drop the leading type name (e.g. "Container").
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		p = strings.ReplaceAll(p, "[", ".")
		p = strings.ReplaceAll(p, "]", "")
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}
