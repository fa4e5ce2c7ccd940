// Package keyvalue converts a config struct tagged for go-simpler/env into a
// sorted list of key/values, and renders it as a shell script that sets the
// variables.
package keyvalue

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"
)

// KV is a key/value pair.
type KV struct{ Key, Value string }

// KVSlice is a collection of key/value pairs.
type KVSlice []KV

func (kv KVSlice) Len() int           { return len(kv) }
func (kv KVSlice) Less(i, j int) bool { return kv[i].Key < kv[j].Key }
func (kv KVSlice) Swap(i, j int)      { kv[i], kv[j] = kv[j], kv[i] }

// EnvKV lists the `env` tagged fields of cfg, which must be a struct value.
// Embedded structs are flattened, slices are joined with commas and anything
// else is printed with fmt, which gives durations in the form env parses.
func EnvKV(cfg any) (m KVSlice) { return envKV(reflect.ValueOf(cfg)) }

func envKV(v reflect.Value) (m KVSlice) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.IsExported() {
			m = append(m, envKV(v.Field(i))...)
			continue
		}
		k := f.Tag.Get("env")
		if k == "" || !f.IsExported() {
			continue
		}
		fv := v.Field(i)
		var val string
		if fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() != reflect.Uint8 {
			parts := make([]string, fv.Len())
			for j := range parts {
				parts[j] = fmt.Sprint(fv.Index(j).Interface())
			}
			val = strings.Join(parts, ",")
		} else {
			val = fmt.Sprint(fv.Interface())
		}
		m = append(m, KV{k, val})
	}
	return
}

// PrintEnv renders the key/values of a config struct to a provided io.Writer.
func PrintEnv(cfg any, printer io.Writer) {
	_, _ = fmt.Fprintln(printer, "#!/usr/bin/env bash")
	kvs := EnvKV(cfg)
	sort.Sort(kvs)
	for _, v := range kvs {
		if strings.ContainsAny(v.Value, " \t#'\"") {
			v.Value = fmt.Sprintf("%q", v.Value)
		}
		_, _ = fmt.Fprintf(printer, "export %s=%s\n", v.Key, v.Value)
	}
}
