// Package canonical computes cache keys from call arguments.
//
// Arguments are walked as a value tree and written in a canonical JSON-like form:
// object keys are NFC normalized and sorted, integral numbers are written without
// a fraction so 5 and 5.0 collide, and transient native addresses are left out.
// The canonical bytes are hashed with xxhash64.
package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/text/unicode/norm"
)

// keyDomain separates call keys from any other use of the same hash function.
const keyDomain = "kbridge/call/v1"

// maxSafeInteger is the largest integer a float64 represents exactly.
const maxSafeInteger = 1 << 53

var nativeAddressType = reflect.TypeFor[domain.NativeAddress]()

// Hasher canonicalizes and hashes call arguments.
type Hasher struct {
	transient map[string]struct{}
}

// NewHasher creates a Hasher that strips the named fields when they hold an integer address.
// Fields of type domain.NativeAddress are stripped regardless of their name.
func NewHasher(transientFields ...string) *Hasher {
	h := &Hasher{transient: make(map[string]struct{}, len(transientFields))}
	for _, f := range transientFields {
		h.transient[norm.NFC.String(f)] = struct{}{}
	}
	return h
}

// Key computes the cache key of the given call.
func (h *Hasher) Key(args domain.CallArguments) (domain.CacheKey, error) {
	key, _, err := h.Describe(args)
	return key, err
}

// Describe computes the cache key together with the canonical form it was derived from.
func (h *Hasher) Describe(args domain.CallArguments) (domain.CacheKey, string, error) {
	canonical, err := h.Canonical(args)
	if err != nil {
		return 0, "", err
	}

	digest := xxhash.New()
	_, _ = digest.WriteString(keyDomain)
	_, _ = digest.Write([]byte{0}) // Separator
	_, _ = digest.Write(canonical)

	return domain.CacheKey(digest.Sum64()), string(canonical), nil
}

// Canonical returns the canonical form of the call.
func (h *Hasher) Canonical(args domain.CallArguments) ([]byte, error) {
	fields := []field{
		{name: "functionName", value: args.FunctionName},
		{name: "inputs", value: args.Inputs},
	}
	if args.Index != nil {
		fields = append(fields, field{name: "index", value: args.Index})
	}

	var buf bytes.Buffer
	if err := h.writeObject(&buf, fields, ""); err != nil {
		return nil, zerr.With(err, "function", args.FunctionName)
	}
	return buf.Bytes(), nil
}

type field struct {
	name  string
	value any
}

func (h *Hasher) write(buf *bytes.Buffer, v any, path string) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case domain.NativeAddress:
		// Addresses inside sequences keep their slot so positions stay stable.
		buf.WriteString("null")
		return nil
	case domain.HandleReference:
		return h.writeReference(buf, val, path)
	case *domain.HandleReference:
		if val == nil {
			buf.WriteString("null")
			return nil
		}
		return h.writeReference(buf, *val, path)
	case domain.CacheKey:
		return writeString(buf, val.String())
	case string:
		return writeString(buf, val)
	case bool:
		buf.WriteString(strconv.FormatBool(val))
		return nil
	case json.Number:
		return writeNumberLiteral(buf, val, path)
	case float64:
		return writeFloat(buf, val, path)
	case float32:
		return writeFloat(buf, float64(val), path)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case map[string]any:
		fields := make([]field, 0, len(val))
		for k, elem := range val {
			fields = append(fields, field{name: k, value: elem})
		}
		return h.writeObject(buf, fields, path)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := h.write(buf, elem, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		return h.writeReflect(buf, reflect.ValueOf(v), path)
	}
}

func (h *Hasher) writeReflect(buf *bytes.Buffer, rv reflect.Value, path string) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		return h.write(buf, rv.Elem().Interface(), path)
	case reflect.Bool:
		buf.WriteString(strconv.FormatBool(rv.Bool()))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString(strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		buf.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return writeFloat(buf, rv.Float(), path)
	case reflect.String:
		return writeString(buf, rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('[')
		for i := range rv.Len() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := h.write(buf, rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return unhashable(rv, path)
		}
		if rv.IsNil() {
			buf.WriteString("null")
			return nil
		}
		fields := make([]field, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields = append(fields, field{name: iter.Key().String(), value: iter.Value().Interface()})
		}
		return h.writeObject(buf, fields, path)
	case reflect.Struct:
		return h.writeObject(buf, structFields(rv), path)
	default:
		return unhashable(rv, path)
	}
}

// structFields lists exported fields under their JSON names.
func structFields(rv reflect.Value) []field {
	rt := rv.Type()
	fields := make([]field, 0, rt.NumField())
	for i := range rt.NumField() {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fields = append(fields, field{name: name, value: rv.Field(i).Interface()})
	}
	return fields
}

func (h *Hasher) writeObject(buf *bytes.Buffer, fields []field, path string) error {
	kept := make([]field, 0, len(fields))
	for _, f := range fields {
		f.name = norm.NFC.String(f.name)
		if h.isTransient(f) {
			continue
		}
		kept = append(kept, f)
	}
	slices.SortFunc(kept, func(a, b field) int { return strings.Compare(a.name, b.name) })

	buf.WriteByte('{')
	for i, f := range kept {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, f.name); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := h.write(buf, f.value, path+"."+f.name); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// isTransient reports whether a field carries a native address.
// Named transient fields only qualify when they hold an integer, so unrelated
// payload that reuses the name is still hashed.
func (h *Hasher) isTransient(f field) bool {
	if f.value == nil {
		return false
	}
	rv := reflect.ValueOf(f.value)
	if rv.Type() == nativeAddressType {
		return true
	}
	if _, ok := h.transient[f.name]; !ok {
		return false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	case reflect.Float32, reflect.Float64:
		fv := rv.Float()
		return fv == math.Trunc(fv) && !math.IsInf(fv, 0)
	default:
		if n, ok := f.value.(json.Number); ok {
			_, err := n.Int64()
			return err == nil
		}
		return false
	}
}

func (h *Hasher) writeReference(buf *bytes.Buffer, ref domain.HandleReference, path string) error {
	return h.writeObject(buf, []field{
		{name: "hash", value: ref.Hash.String()},
		{name: "kind", value: ref.Kind},
	}, path)
}

func writeString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return zerr.Wrap(err, "failed to encode string")
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte{'\n'}))
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return zerr.With(zerr.Wrap(domain.ErrUnhashableValue, "non-finite number"), "path", path)
	}
	if f == math.Trunc(f) && math.Abs(f) < maxSafeInteger {
		buf.WriteString(strconv.FormatInt(int64(f), 10))
		return nil
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func writeNumberLiteral(buf *bytes.Buffer, n json.Number, path string) error {
	if i, err := n.Int64(); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return zerr.With(zerr.Wrap(domain.ErrUnhashableValue, "malformed number"), "path", path)
	}
	return writeFloat(buf, f, path)
}

func unhashable(rv reflect.Value, path string) error {
	return zerr.With(
		zerr.With(zerr.Wrap(domain.ErrUnhashableValue, "unsupported type "+rv.Type().String()), "path", path),
		"type", rv.Type().String(),
	)
}
