// Package env renders config structs into dotenv files, the inverse of the
// env-tag parsing done at startup.
package env

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// MarshalEnv renders the struct's `env`-tagged exported fields as KEY=VALUE
// lines. Zero-valued fields are omitted so runtime defaults stay in effect.
func MarshalEnv(c any) (string, error) {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()

	var b strings.Builder
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("env")
		if tag == "" || !field.IsExported() {
			continue
		}
		// Tag options such as "required" only matter when parsing.
		key, _, _ := strings.Cut(tag, ",")
		if key == "" {
			continue
		}

		val := v.Field(i)
		if val.IsZero() {
			continue
		}

		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(formatValue(val))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func formatValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
