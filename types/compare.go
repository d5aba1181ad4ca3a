package types

// Equal reports whether two types are structurally equal. Record fields are
// matched by name; their order is ignored.
func Equal(a, b Type) bool {
	switch at := a.(type) {
	case NullType:
		_, ok := b.(NullType)
		return ok
	case BoolType:
		_, ok := b.(BoolType)
		return ok
	case NumberType:
		_, ok := b.(NumberType)
		return ok
	case StringType:
		_, ok := b.(StringType)
		return ok
	case ArrayType:
		bt, ok := b.(ArrayType)
		return ok && Equal(at.Elem, bt.Elem)
	case RecordType:
		bt, ok := b.(RecordType)
		if !ok || len(at.Fields) != len(bt.Fields) {
			return false
		}
		for _, f := range at.Fields {
			ft, ok := bt.Lookup(f.Name)
			if !ok || !Equal(f.Type, ft) {
				return false
			}
		}
		return true
	default:
		panic("internal error: unknown type variant")
	}
}
