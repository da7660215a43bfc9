package raw

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Hash returns the hex SHA-256 digest of obj's structure. Dictionary keys are
// visited in sorted order, so equal objects hash equally.
func Hash(obj Object) string {
	h := sha256.New()
	WriteHash(h, obj)
	return hex.EncodeToString(h.Sum(nil))
}

// WriteHash feeds a canonical rendition of obj into w.
func WriteHash(w io.Writer, obj Object) {
	if obj == nil {
		fmt.Fprint(w, "nil")
		return
	}
	fmt.Fprint(w, obj.Type(), ":")
	switch t := obj.(type) {
	case NameObj:
		fmt.Fprint(w, t.Val)
	case NumberObj:
		if t.IsInt {
			fmt.Fprint(w, t.I)
		} else {
			fmt.Fprint(w, t.F)
		}
	case BoolObj:
		fmt.Fprint(w, t.V)
	case StringObj:
		fmt.Fprintf(w, "%d:", len(t.Bytes))
		w.Write(t.Bytes)
	case HexStringObj:
		fmt.Fprintf(w, "%d:", len(t.Bytes))
		w.Write(t.Bytes)
	case RefObj:
		fmt.Fprintf(w, "%d %d R", t.R.Num, t.R.Gen)
	case *ArrayObj:
		fmt.Fprint(w, "[")
		for _, v := range t.Items {
			WriteHash(w, v)
			fmt.Fprint(w, ",")
		}
		fmt.Fprint(w, "]")
	case *DictObj:
		fmt.Fprint(w, "<<")
		for _, k := range t.Keys() {
			fmt.Fprint(w, k, "=")
			WriteHash(w, t.KV[k])
		}
		fmt.Fprint(w, ">>")
	case *StreamObj:
		WriteHash(w, t.Dict)
		fmt.Fprintf(w, "%d:", len(t.Data))
		w.Write(t.Data)
	case NullObj:
		fmt.Fprint(w, "null")
	}
}
