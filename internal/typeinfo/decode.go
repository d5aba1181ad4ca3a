package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// structDest is a struct output along with its reflection information.
type structDest struct {
	value   reflect.Value
	info    *Info
	claimed bool
}

// valueDest is a plain value output, matched positionally against the
// columns no struct tag names.
type valueDest struct {
	value   reflect.Value
	claimed bool
}

// ScanArgs builds the arguments to pass to rows.Scan when reading a result
// row with the given columns into outputArgs. Struct pointers claim the
// columns named by their "db" tags, a string-keyed map collects every
// column left over, and pointers to plain Go values are matched in order
// against the remaining columns. The returned onSuccess commits proxied
// values and must be called after a successful Scan.
func ScanArgs(columns []string, outputArgs []any) ([]any, func(), error) {
	var structs []*structDest
	var values []*valueDest
	var mapDest reflect.Value

	for _, outputArg := range outputArgs {
		if outputArg == nil {
			return nil, nil, fmt.Errorf("need pointer to struct, map, or pointer to value, got nil")
		}
		v := reflect.ValueOf(outputArg)
		switch v.Kind() {
		case reflect.Map:
			t := v.Type()
			if t.Key().Kind() != reflect.String {
				return nil, nil, fmt.Errorf("map type %s must have key type string, found type %s", t.Name(), t.Key().Kind())
			}
			if t.Elem().Kind() != reflect.Interface || t.Elem().NumMethod() != 0 {
				return nil, nil, fmt.Errorf("map type %s must have value type any", t.Name())
			}
			if v.IsNil() {
				return nil, nil, fmt.Errorf("got nil map")
			}
			if mapDest.IsValid() {
				return nil, nil, fmt.Errorf("cannot scan into more than one map")
			}
			mapDest = v
		case reflect.Pointer:
			if v.IsNil() {
				return nil, nil, fmt.Errorf("got nil pointer")
			}
			elem := v.Elem()
			if elem.Kind() == reflect.Map {
				return nil, nil, fmt.Errorf("need map, got pointer to map")
			}
			if elem.Kind() == reflect.Struct && !v.Type().Implements(scannerInterface) {
				info, err := GetTypeInfo(outputArg)
				if err != nil {
					return nil, nil, err
				}
				for _, prev := range structs {
					if prev.info.Type == info.Type {
						return nil, nil, fmt.Errorf("type %q provided more than once", info.Type.Name())
					}
				}
				structs = append(structs, &structDest{value: elem, info: info})
			} else {
				values = append(values, &valueDest{value: elem})
			}
		default:
			return nil, nil, fmt.Errorf("need pointer to struct, map, or pointer to value, got %s", v.Kind())
		}
	}
	if mapDest.IsValid() && len(values) > 0 {
		return nil, nil, fmt.Errorf("cannot combine map and plain value outputs")
	}

	var ptrs []any
	var proxies []ScanProxy
	for _, column := range columns {
		var dest *structDest
		for _, s := range structs {
			if _, ok := s.info.TagToField[column]; !ok {
				continue
			}
			if dest != nil {
				return nil, nil, fmt.Errorf("column %q is claimed by more than one struct", column)
			}
			dest = s
		}
		switch {
		case dest != nil:
			field := dest.info.TagToField[column]
			val := dest.value.Field(field.Index)
			if !val.CanSet() {
				return nil, nil, fmt.Errorf("internal error: cannot set field %s of struct %s", field.Name, dest.info.Type.Name())
			}
			ptr, proxy := scanTarget(val)
			ptrs = append(ptrs, ptr)
			if proxy != nil {
				proxies = append(proxies, *proxy)
			}
			dest.claimed = true
		case mapDest.IsValid():
			scanVal := reflect.New(mapDest.Type().Elem()).Elem()
			ptrs = append(ptrs, scanVal.Addr().Interface())
			proxies = append(proxies, ScanProxy{original: mapDest, scan: scanVal, key: reflect.ValueOf(column)})
		default:
			vd := nextUnclaimed(values)
			if vd == nil {
				return nil, nil, fmt.Errorf("no output provided for column %q", column)
			}
			ptr, proxy := scanTarget(vd.value)
			ptrs = append(ptrs, ptr)
			if proxy != nil {
				proxies = append(proxies, *proxy)
			}
			vd.claimed = true
		}
	}

	for _, s := range structs {
		if !s.claimed {
			return nil, nil, fmt.Errorf("type %q does not match any result column", s.info.Type.Name())
		}
	}
	for _, vd := range values {
		if !vd.claimed {
			return nil, nil, fmt.Errorf("no result column for output of type %s", vd.value.Type())
		}
	}

	onSuccess := func() {
		for _, proxy := range proxies {
			proxy.OnSuccess()
		}
	}
	return ptrs, onSuccess, nil
}

// scanTarget returns a pointer to pass to rows.Scan for the destination
// value. Destinations that cannot absorb a SQL NULL are scanned through a
// fresh pointer and settled by the returned ScanProxy.
func scanTarget(val reflect.Value) (any, *ScanProxy) {
	pt := reflect.PointerTo(val.Type())
	k := val.Kind()
	if k != reflect.Pointer && k != reflect.Interface && !pt.Implements(scannerInterface) {
		scanVal := reflect.New(pt).Elem()
		return scanVal.Addr().Interface(), &ScanProxy{original: val, scan: scanVal}
	}
	return val.Addr().Interface(), nil
}

func nextUnclaimed(values []*valueDest) *valueDest {
	for _, vd := range values {
		if !vd.claimed {
			return vd
		}
	}
	return nil
}
