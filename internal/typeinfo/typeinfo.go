package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo will return the Info of a given type,
// generating and caching as required.
func GetTypeInfo(value any) (*Info, error) {
	if value == (any)(nil) {
		return &Info{}, fmt.Errorf("cannot reflect nil value")
	}

	v := reflect.ValueOf(value)
	v = reflect.Indirect(v)

	cacheMutex.RLock()
	info, found := cache[v.Type()]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(v)
	if err != nil {
		return &Info{}, err
	}

	cacheMutex.Lock()
	cache[v.Type()] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces and returns reflection information for the input
// reflect.Value that is specifically required for nestql operation.
func generate(value reflect.Value) (*Info, error) {
	// Dereference the value if it is a pointer.
	value = reflect.Indirect(value)

	// Reflection information is only generated for structs.
	if value.Kind() != reflect.Struct {
		return &Info{}, fmt.Errorf("can only reflect struct type")
	}

	info := Info{
		TagToField: make(map[string]Field),
		FieldToTag: make(map[string]string),
		Type:       value.Type(),
	}

	typ := value.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		// Fields without a "db" tag are outside of nestql's remit.
		tag := field.Tag.Get("db")
		if tag == "" {
			continue
		}
		tag, err := parseTag(tag)
		if err != nil {
			return &Info{}, err
		}
		info.TagToField[tag] = Field{
			Name:  field.Name,
			Index: i,
			Type:  field.Type,
		}
		info.FieldToTag[field.Name] = tag
	}

	return &info, nil
}

// Column names mirror what the compiler is willing to emit.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns the column it names.
func parseTag(tag string) (string, error) {
	if strings.Contains(tag, ",") {
		return "", fmt.Errorf("unexpected option in 'db' tag %q", tag)
	}
	if !validColNameRx.MatchString(tag) {
		return "", fmt.Errorf("invalid column name in 'db' tag")
	}
	return tag, nil
}
