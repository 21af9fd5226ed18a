// Package textprint prints values in human readable form, either through
// their fmt.Formatter implementation or as rows of tables.
package textprint

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// none is printed in place of nil values.
const none = "-"

type encodeFunc func(io.Writer, reflect.Value) error

var (
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	formatterType = reflect.TypeOf((*fmt.Formatter)(nil)).Elem()
	stringerType  = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

func encodeFuncOf(t reflect.Type) encodeFunc {
	switch {
	case t.Kind() == reflect.Interface:
		return encodeInterface
	case t.Implements(formatterType):
		return func(w io.Writer, v reflect.Value) error {
			_, err := fmt.Fprintf(w, "%v", v.Interface())
			return err
		}
	case t.Implements(errorType):
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, v.Interface().(error).Error())
		}
	case t.Implements(stringerType):
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, v.Interface().(fmt.Stringer).String())
		}
	}

	switch t.Kind() {
	case reflect.Bool:
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, strconv.FormatBool(v.Bool()))
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, strconv.FormatInt(v.Int(), 10))
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, strconv.FormatUint(v.Uint(), 10))
		}
	case reflect.String:
		return func(w io.Writer, v reflect.Value) error {
			return writeString(w, v.String())
		}
	case reflect.Pointer:
		return encodeFuncOfPointer(t.Elem())
	case reflect.Slice:
		return encodeFuncOfSlice(t.Elem())
	default:
		panic("cannot encode values of type " + t.String())
	}
}

// encodeInterface prints the dynamic value of interfaces.
func encodeInterface(w io.Writer, v reflect.Value) error {
	if v.IsNil() {
		return writeString(w, none)
	}
	e := v.Elem()
	return encodeFuncOf(e.Type())(w, e)
}

func encodeFuncOfPointer(t reflect.Type) encodeFunc {
	encode := encodeFuncOf(t)
	return func(w io.Writer, v reflect.Value) error {
		if v.IsNil() {
			return writeString(w, none)
		}
		return encode(w, v.Elem())
	}
}

func encodeFuncOfSlice(t reflect.Type) encodeFunc {
	encode := encodeFuncOf(t)
	return func(w io.Writer, v reflect.Value) error {
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				if err := writeString(w, ", "); err != nil {
					return err
				}
			}
			if err := encode(w, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
}

func encodeFuncOfStructField(t reflect.Type, index []int) encodeFunc {
	encode := encodeFuncOf(t)
	return func(w io.Writer, v reflect.Value) error {
		return encode(w, v.FieldByIndex(index))
	}
}

func writeString(w io.Writer, s string) error {
	_, err := io.WriteString(w, s)
	return err
}
