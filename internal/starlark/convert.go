package starlark

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/leapstack-labs/leapgraph/pkg/core"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// FromGo converts config and var values, as decoded from YAML, into
// Starlark values. Maps become dicts with sorted string keys; slices and
// arrays become lists.
func FromGo(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case string:
		return starlark.String(v), nil
	case []byte:
		return starlark.String(v), nil
	case bool:
		return starlark.Bool(v), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil
	case reflect.String:
		return starlark.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		items := make([]starlark.Value, rv.Len())
		for i := range items {
			item, err := FromGo(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = item
		}
		return starlark.NewList(items), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("map keys must be strings, got %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(keys))
		for _, k := range keys {
			item, err := FromGo(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), item); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case reflect.Pointer:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return FromGo(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// targetStruct is the "target" global. Credentials are not exposed.
func targetStruct(t *core.TargetConfig) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"type":     starlark.String(t.Type),
		"schema":   starlark.String(t.Schema),
		"database": starlark.String(t.Database),
	})
}

// thisStruct is the "this" global describing the node being rendered.
func thisStruct(n *core.Node) starlark.Value {
	return starlarkstruct.FromStringDict(starlark.String("this"), starlark.StringDict{
		"name":      starlark.String(n.Name),
		"schema":    starlark.String(n.Schema),
		"database":  starlark.String(n.Database),
		"relation":  starlark.String(n.RelationName()),
		"unique_id": starlark.String(n.UniqueID),
	})
}
