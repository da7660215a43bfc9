package parser

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
)

var objHeader = regexp.MustCompile(`(\d+)[ \t\r\n\f\x00]+(\d+)[ \t\r\n\f\x00]+obj\b`)

// repair rebuilds the cross-reference table by scanning the whole file for
// "N G obj" headers. Later definitions win, matching incremental updates.
func (p *parser) repair() *xrefTable {
	t := newXRefTable()
	for _, m := range objHeader.FindAllSubmatchIndex(p.data, -1) {
		if m[0] > 0 && p.data[m[0]-1] >= '0' && p.data[m[0]-1] <= '9' {
			continue
		}
		num, err := strconv.Atoi(string(p.data[m[2]:m[3]]))
		if err != nil {
			continue
		}
		gen, err := strconv.Atoi(string(p.data[m[4]:m[5]]))
		if err != nil {
			continue
		}
		t.entries[num] = xrefEntry{kind: entryInUse, offset: int64(m[0]), gen: gen}
	}

	if idx := bytes.LastIndex(p.data, []byte("trailer")); idx >= 0 {
		s := scanner.New(p.data)
		if s.Seek(int64(idx+len("trailer"))) == nil {
			if obj, err := parseObject(newTokenReader(s), 0); err == nil {
				t.trailer, _ = obj.(*raw.DictObj)
			}
		}
	}
	return t
}
