package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Normalize coerces a function's output into a Result. A *Result passes
// through, an *Agent becomes a handoff Result, and any other value is
// converted to text.
func Normalize(out Output) (*Result, error) {
	switch v := out.(type) {
	case *Result:
		if v == nil {
			return &Result{ContextVariables: ContextVariables{}}, nil
		}
		if v.ContextVariables == nil {
			r := *v
			r.ContextVariables = ContextVariables{}
			return &r, nil
		}
		return v, nil
	case *Agent:
		if v == nil {
			return nil, &TypeError{Value: out, Err: fmt.Errorf("nil agent")}
		}
		marker, err := json.Marshal(map[string]string{"assistant": v.Name})
		if err != nil {
			return nil, &TypeError{Value: v.Name, Err: err}
		}
		return &Result{
			Value:            string(marker),
			Agent:            v,
			ContextVariables: ContextVariables{},
		}, nil
	case Value:
		s, err := stringify(v.V)
		if err != nil {
			return nil, err
		}
		return &Result{Value: s, ContextVariables: ContextVariables{}}, nil
	case nil:
		return &Result{Value: "", ContextVariables: ContextVariables{}}, nil
	}
	return nil, &TypeError{Value: out, Err: fmt.Errorf("unsupported output type %T", out)}
}

// stringify converts v to its string representation
func stringify(v any) (s string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s = ""
			err = &TypeError{Value: v, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case error:
		return x.Error(), nil
	case fmt.Stringer:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return "", &TypeError{Value: v, Err: fmt.Errorf("%s values cannot be converted to text", rv.Kind())}
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Pointer, reflect.Interface:
		raw, err := json.Marshal(v)
		if err != nil {
			return "", &TypeError{Value: v, Err: err}
		}
		return string(raw), nil
	}
	return fmt.Sprint(v), nil
}
