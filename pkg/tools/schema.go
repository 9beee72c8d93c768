package tools

// Schema is a JSON-schema-like fragment describing one parameter. Tools
// declare their parameter shapes once through the builders below instead
// of deriving them from reflection; the produced JSON shapes are part of
// the prompt contract and must stay stable.
type Schema map[string]interface{}

func String() Schema  { return Schema{"type": "string"} }
func Integer() Schema { return Schema{"type": "integer"} }
func Number() Schema  { return Schema{"type": "number"} }
func Boolean() Schema { return Schema{"type": "boolean"} }

// Array describes a homogeneous sequence.
func Array(items Schema) Schema {
	return Schema{"type": "array", "items": normalize(items)}
}

// Set is an array that additionally carries uniqueItems.
func Set(items Schema) Schema {
	return Schema{"type": "array", "items": normalize(items), "uniqueItems": true}
}

// Map describes an open object whose values all share one schema.
func Map(values Schema) Schema {
	return Schema{"type": "object", "additionalProperties": normalize(values)}
}

// Tuple describes a fixed-size array with one schema per position.
func Tuple(members ...Schema) Schema {
	items := make([]interface{}, 0, len(members))
	for _, m := range members {
		items = append(items, normalize(m))
	}
	return Schema{"type": "array", "prefixItems": items}
}

// Enum describes a closed choice. When every value shares one JSON
// primitive type a "type" hint is added alongside the value list.
func Enum(values ...interface{}) Schema {
	s := Schema{"enum": values}
	if hint, ok := sharedPrimitiveType(values); ok {
		s["type"] = hint
	}
	return s
}

// AnyOf describes a union with more than one non-null member.
func AnyOf(members ...Schema) Schema {
	options := make([]interface{}, 0, len(members))
	for _, m := range members {
		options = append(options, normalize(m))
	}
	return Schema{"anyOf": options}
}

// Describe attaches a human description to the fragment.
func (s Schema) Describe(desc string) Schema {
	out := normalize(s)
	out["description"] = desc
	return out
}

// WithExamples attaches example values to the fragment.
func (s Schema) WithExamples(examples ...interface{}) Schema {
	out := normalize(s)
	out["examples"] = examples
	return out
}

// WithDefault records the value the tool assumes when the parameter is
// omitted. Defaults belong on optional parameters; declaring one does
// not remove the parameter from the required list on its own.
func (s Schema) WithDefault(value interface{}) Schema {
	out := normalize(s)
	out["default"] = value
	return out
}

// normalize copies the fragment so builder chains never alias, and
// silently degrades a nil or empty fragment to a plain string schema.
// The degrade is deliberate: an undeclarable parameter still gets a
// usable slot in the prompt rather than failing registration.
func normalize(s Schema) Schema {
	if len(s) == 0 {
		return Schema{"type": "string"}
	}
	out := make(Schema, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func sharedPrimitiveType(values []interface{}) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	hint := ""
	for _, v := range values {
		var t string
		switch v.(type) {
		case string:
			t = "string"
		case bool:
			t = "boolean"
		case int, int32, int64:
			t = "integer"
		case float32, float64:
			t = "number"
		default:
			return "", false
		}
		if hint == "" {
			hint = t
		} else if hint != t {
			return "", false
		}
	}
	return hint, true
}

// ObjectBuilder assembles the top-level parameter object for a tool, or
// a nested structured record. Required properties are exactly those
// registered with Prop; Optional registers a property without adding it
// to the required list.
type ObjectBuilder struct {
	properties map[string]interface{}
	required   []string
}

func NewObject() *ObjectBuilder {
	return &ObjectBuilder{properties: make(map[string]interface{})}
}

func (b *ObjectBuilder) Prop(name string, s Schema) *ObjectBuilder {
	b.properties[name] = map[string]interface{}(normalize(s))
	b.required = append(b.required, name)
	return b
}

func (b *ObjectBuilder) Optional(name string, s Schema) *ObjectBuilder {
	b.properties[name] = map[string]interface{}(normalize(s))
	return b
}

func (b *ObjectBuilder) Build() map[string]interface{} {
	out := map[string]interface{}{
		"type":       "object",
		"properties": b.properties,
	}
	if len(b.required) > 0 {
		out["required"] = b.required
	} else {
		out["required"] = []string{}
	}
	return out
}

// Record exposes the built object as a Schema for nesting inside other
// fragments.
func (b *ObjectBuilder) Record() Schema {
	return Schema(b.Build())
}
