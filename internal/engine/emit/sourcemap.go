package emit

import (
	"encoding/json"
	"strings"
)

// Mapping ties a generated position to a source position. Lines and columns
// are zero-based.
type Mapping struct {
	GenLine int
	GenCol  int
	Source  int
	SrcLine int
	SrcCol  int
}

// SourceMap is a revision 3 source map.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

func (sm *SourceMap) JSON() ([]byte, error) {
	return json.Marshal(sm)
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// appendVLQ writes value as a base64 VLQ with the sign in the lowest bit.
func appendVLQ(b *strings.Builder, value int) {
	v := value << 1
	if value < 0 {
		v = (-value << 1) | 1
	}
	for {
		digit := v & 31
		v >>= 5
		if v > 0 {
			digit |= 32
		}
		b.WriteByte(base64Digits[digit])
		if v == 0 {
			return
		}
	}
}

// decodeVLQ reads one value from s and returns it with the bytes consumed.
func decodeVLQ(s string) (int, int, bool) {
	v, shift := 0, 0
	for i := 0; i < len(s); i++ {
		digit := strings.IndexByte(base64Digits, s[i])
		if digit < 0 {
			return 0, 0, false
		}
		v |= (digit & 31) << shift
		shift += 5
		if digit&32 == 0 {
			if v&1 == 1 {
				return -(v >> 1), i + 1, true
			}
			return v >> 1, i + 1, true
		}
	}
	return 0, 0, false
}

// encodeMappings serializes mappings sorted by generated position.
func encodeMappings(mappings []Mapping) string {
	var b strings.Builder
	line := 0
	prevCol, prevSource, prevLine, prevSrcCol := 0, 0, 0, 0
	first := true
	for _, m := range mappings {
		for line < m.GenLine {
			b.WriteByte(';')
			line++
			prevCol = 0
			first = true
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		appendVLQ(&b, m.GenCol-prevCol)
		appendVLQ(&b, m.Source-prevSource)
		appendVLQ(&b, m.SrcLine-prevLine)
		appendVLQ(&b, m.SrcCol-prevSrcCol)
		prevCol, prevSource, prevLine, prevSrcCol = m.GenCol, m.Source, m.SrcLine, m.SrcCol
	}
	return b.String()
}

// DecodeMappings parses a mappings string back into absolute positions.
func DecodeMappings(s string) ([]Mapping, bool) {
	var out []Mapping
	line := 0
	col, source, srcLine, srcCol := 0, 0, 0, 0
	for _, group := range strings.Split(s, ";") {
		col = 0
		for _, seg := range strings.Split(group, ",") {
			if seg == "" {
				continue
			}
			var fields []int
			for len(seg) > 0 {
				v, n, ok := decodeVLQ(seg)
				if !ok {
					return nil, false
				}
				fields = append(fields, v)
				seg = seg[n:]
			}
			if len(fields) != 4 && len(fields) != 5 {
				return nil, false
			}
			col += fields[0]
			source += fields[1]
			srcLine += fields[2]
			srcCol += fields[3]
			out = append(out, Mapping{GenLine: line, GenCol: col, Source: source, SrcLine: srcLine, SrcCol: srcCol})
		}
		line++
	}
	return out, true
}
