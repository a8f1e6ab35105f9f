package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

const maxStringifyDepth = 20

// StableStringify renders v as JSON with object keys sorted recursively, so
// that two structurally-equal values (regardless of map insertion order)
// produce identical strings. It enforces a depth limit and detects cycles
// through maps and slices/arrays of pointers, per spec.md §4.3.
func StableStringify(v interface{}) (string, error) {
	var b strings.Builder
	seen := map[uintptr]bool{}
	if err := writeStable(&b, v, 0, seen); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeStable(b *strings.Builder, v interface{}, depth int, seen map[uintptr]bool) error {
	if depth > maxStringifyDepth {
		return fmt.Errorf("cache: stableStringify exceeds max depth %d", maxStringifyDepth)
	}
	if v == nil {
		b.WriteString("null")
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		return writeStableMap(b, rv, depth, seen)
	case reflect.Slice, reflect.Array:
		return writeStableSlice(b, rv, depth, seen)
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("null")
			return nil
		}
		return writeStable(b, rv.Elem().Interface(), depth, seen)
	case reflect.String:
		b.WriteString(strconv.Quote(rv.String()))
		return nil
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
		return nil
	default:
		return fmt.Errorf("cache: stableStringify: unsupported kind %s", rv.Kind())
	}
}

func writeStableMap(b *strings.Builder, rv reflect.Value, depth int, seen map[uintptr]bool) error {
	if rv.IsNil() {
		b.WriteString("null")
		return nil
	}
	ptr := rv.Pointer()
	if seen[ptr] {
		return fmt.Errorf("cache: stableStringify: cyclic reference detected")
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	keys := rv.MapKeys()
	strKeys := make([]string, 0, len(keys))
	keyByStr := map[string]reflect.Value{}
	for _, k := range keys {
		ks := fmt.Sprintf("%v", k.Interface())
		strKeys = append(strKeys, ks)
		keyByStr[ks] = k
	}
	sort.Strings(strKeys)

	b.WriteByte('{')
	first := true
	for _, ks := range strKeys {
		val := rv.MapIndex(keyByStr[ks]).Interface()
		if val == nil {
			continue // skip undefined-equivalent entries
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Quote(ks))
		b.WriteByte(':')
		if err := writeStable(b, val, depth+1, seen); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func writeStableSlice(b *strings.Builder, rv reflect.Value, depth int, seen map[uintptr]bool) error {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		b.WriteString("null")
		return nil
	}
	if rv.Kind() == reflect.Slice && rv.Len() > 0 {
		ptr := rv.Pointer()
		if seen[ptr] {
			return fmt.Errorf("cache: stableStringify: cyclic reference detected")
		}
		seen[ptr] = true
		defer delete(seen, ptr)
	}

	b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeStable(b, rv.Index(i).Interface(), depth+1, seen); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}
