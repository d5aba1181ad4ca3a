package typeinfo

import "reflect"

// ScanProxy is a shim for scanning result columns
// into destinations that rows.Scan cannot fill directly.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	key      reflect.Value
}

// OnSuccess delivers the scanned value to its real destination. Map
// destinations get the value set under the proxy key, value destinations
// are set through the intermediate pointer, with NULL becoming the zero
// value.
func (sp ScanProxy) OnSuccess() {
	if sp.key.IsValid() {
		sp.original.SetMapIndex(sp.key, sp.scan)
	} else {
		var val reflect.Value
		if !sp.scan.IsNil() {
			val = sp.scan.Elem()
		} else {
			val = reflect.Zero(sp.original.Type())
		}
		sp.original.Set(val)
	}
}
