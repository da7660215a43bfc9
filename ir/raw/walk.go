package raw

// Clone returns a deep copy of obj. Byte slices are copied so that the result
// never aliases the source buffer.
func Clone(obj Object) Object {
	switch v := obj.(type) {
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), v.Bytes...)}
	case HexStringObj:
		return HexStringObj{Bytes: append([]byte(nil), v.Bytes...)}
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = Clone(it)
		}
		return out
	case *DictObj:
		if v == nil {
			return (*DictObj)(nil)
		}
		out := &DictObj{KV: make(map[string]Object, len(v.KV))}
		for k, it := range v.KV {
			out.KV[k] = Clone(it)
		}
		return out
	case *StreamObj:
		var dict *DictObj
		if v.Dict != nil {
			dict = Clone(v.Dict).(*DictObj)
		}
		return &StreamObj{Dict: dict, Data: append([]byte(nil), v.Data...)}
	default:
		return obj
	}
}

// References lists the indirect references reachable inside obj without
// following them, in traversal order with sorted dictionary keys.
func References(obj Object) []ObjectRef {
	var out []ObjectRef
	var walk func(o Object)
	walk = func(o Object) {
		switch v := o.(type) {
		case RefObj:
			out = append(out, v.R)
		case *ArrayObj:
			for _, it := range v.Items {
				walk(it)
			}
		case *DictObj:
			if v == nil {
				return
			}
			for _, k := range v.Keys() {
				walk(v.KV[k])
			}
		case *StreamObj:
			if v.Dict != nil {
				walk(v.Dict)
			}
		}
	}
	walk(obj)
	return out
}

// Rewrite replaces every reference inside obj using fn, in place, and returns obj.
func Rewrite(obj Object, fn func(ObjectRef) Object) Object {
	switch v := obj.(type) {
	case RefObj:
		return fn(v.R)
	case *ArrayObj:
		for i, it := range v.Items {
			v.Items[i] = Rewrite(it, fn)
		}
	case *DictObj:
		if v == nil {
			return v
		}
		for k, it := range v.KV {
			v.KV[k] = Rewrite(it, fn)
		}
	case *StreamObj:
		if v.Dict != nil {
			Rewrite(v.Dict, fn)
		}
	}
	return obj
}
