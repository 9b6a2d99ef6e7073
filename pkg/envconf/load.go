// Package envconf fills a struct from environment variables.
//
// Fields are bound with an `env:"NAME"` tag. A variable that is not set is
// an error unless the field also has a `default:"value"` tag, which is parsed
// as if it had been set, or the tag carries the optional flag
// (`env:"NAME,optional"`), which leaves the field untouched. Untagged struct
// fields (and pointers to structs) are loaded recursively.
package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrBadTag          = errors.New("invalid env tag")
)

var durationType = reflect.TypeOf(time.Duration(0))

// Load populates dst, which must be a non-nil pointer to a struct.
func Load(dst any) error {
	return LoadFrom(os.LookupEnv, dst)
}

// LookupFunc resolves a variable name the way os.LookupEnv does.
type LookupFunc func(name string) (string, bool)

// LoadFrom is Load with a custom variable lookup.
//
//nolint:gocognit
func LoadFrom(lookup LookupFunc, dst any) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("destination must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("destination must point to a struct")
	}

	t := v.Type()
	for i := range v.NumField() {
		sf := t.Field(i)
		fv := v.Field(i)

		if !sf.IsExported() {
			continue
		}

		tag := sf.Tag.Get("env")

		if tag == "-" || tag == "" {
			if fv.Kind() == reflect.Struct && sf.Type != durationType {
				err := LoadFrom(lookup, fv.Addr().Interface())
				if err != nil {
					return fmt.Errorf("load recursively %q: %w", sf.Name, err)
				}

				continue
			}

			if fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct {
				if fv.IsNil() {
					fv.Set(reflect.New(fv.Type().Elem()))
				}

				err := LoadFrom(lookup, fv.Interface())
				if err != nil {
					return fmt.Errorf("load recursively %q: %w", sf.Name, err)
				}
			}

			continue
		}

		name, optional, err := parseTag(tag)
		if err != nil {
			return fmt.Errorf("field %q: %w", sf.Name, err)
		}

		raw, ok := lookup(name)
		if !ok {
			def, hasDefault := sf.Tag.Lookup("default")

			switch {
			case hasDefault:
				raw = def
			case optional:
				continue
			default:
				return fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, name, sf.Name)
			}
		}

		err = setValue(fv, raw)
		if err != nil {
			return fmt.Errorf("parse %q for field %q: %w", name, sf.Name, err)
		}
	}

	return nil
}

func parseTag(tag string) (string, bool, error) {
	name, opts, _ := strings.Cut(tag, ",")

	name = strings.TrimSpace(name)
	if name == "" {
		return "", false, fmt.Errorf("%w: %q", ErrBadTag, tag)
	}

	switch strings.TrimSpace(opts) {
	case "":
		return name, false, nil
	case "optional":
		return name, true, nil
	default:
		return "", false, fmt.Errorf("%w: unknown option in %q", ErrBadTag, tag)
	}
}

//nolint:gocognit,cyclop
func setValue(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			err := u.UnmarshalText([]byte(raw))
			if err != nil {
				return fmt.Errorf("unmarshal text: %w", err)
			}

			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)

		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		fv.SetBool(b)

		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		fv.SetInt(i)

		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		fv.SetUint(u)

		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}

		fv.SetFloat(f)

		return nil
	case reflect.Pointer:
		if fv.IsNil() {
			elem := reflect.New(fv.Type().Elem())

			err := setValue(elem.Elem(), raw)
			if err != nil {
				return fmt.Errorf("parse pointer: %w", err)
			}

			fv.Set(elem)

			return nil
		}

		err := setValue(fv.Elem(), raw)
		if err != nil {
			return fmt.Errorf("parse pointer: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("unsupported type: %w", ErrUnsupportedType)
	}
}
