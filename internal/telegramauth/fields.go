package telegramauth

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Field is a single name=value pair received from Telegram.
type Field struct {
	Name  string
	Value string
}

// Fields is a credential payload. Order is irrelevant for verification.
type Fields []Field

// FieldsFromValues converts query parameters into Fields.
// Only the first value of a repeated key is kept.
func FieldsFromValues(values url.Values) Fields {
	fields := make(Fields, 0, len(values))
	for name, vv := range values {
		if len(vv) == 0 {
			continue
		}
		fields = append(fields, Field{Name: name, Value: vv[0]})
	}
	return fields
}

// FieldsFromMap converts a plain map into Fields.
func FieldsFromMap(m map[string]string) Fields {
	fields := make(Fields, 0, len(m))
	for name, value := range m {
		fields = append(fields, Field{Name: name, Value: value})
	}
	return fields
}

// ParseInitData decodes a Mini App initData string exactly as delivered by
// the client runtime.
func ParseInitData(initData string) (Fields, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("%w: decode init data: %v", ErrNotAuthentic, err)
	}
	return FieldsFromValues(values), nil
}

// Get returns the value of the first field with the given name.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Value is like Get but returns "" when the field is absent.
func (f Fields) Value(name string) string {
	v, _ := f.Get(name)
	return v
}

// Set replaces the value of name, appending the field if it is absent.
func (f Fields) Set(name, value string) Fields {
	for i := range f {
		if f[i].Name == name {
			out := make(Fields, len(f))
			copy(out, f)
			out[i].Value = value
			return out
		}
	}
	out := make(Fields, len(f), len(f)+1)
	copy(out, f)
	return append(out, Field{Name: name, Value: value})
}

// Without returns a copy of f with every field named in names removed.
func (f Fields) Without(names ...string) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if contains(names, field.Name) {
			continue
		}
		out = append(out, field)
	}
	return out
}

// Encode renders the fields as a URL query string, sorted by name.
func (f Fields) Encode() string {
	values := make(url.Values, len(f))
	for _, field := range f {
		values.Add(field.Name, field.Value)
	}
	return values.Encode()
}

// DataCheckString builds the canonical message Telegram signs: every field
// not listed in exclude, sorted by name (byte order), rendered as name=value
// and joined with "\n". An empty payload yields "".
func DataCheckString(fields Fields, exclude ...string) string {
	kept := fields.Without(exclude...)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Name < kept[j].Name
	})

	lines := make([]string, len(kept))
	for i, field := range kept {
		lines[i] = field.Name + "=" + field.Value
	}
	return strings.Join(lines, "\n")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
