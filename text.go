package blk

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Text renders the tree in the human readable block-file form: one
// "name:t=value" line per field, child blocks in braces. The root block
// itself emits no braces.
func (b *Block) Text() string {
	var sb strings.Builder
	b.writeText(&sb, 0, true)
	return sb.String()
}

func (b *Block) writeText(sb *strings.Builder, indent int, root bool) {
	if !root {
		sb.WriteString(b.Name)
		sb.WriteString(" {\n")
		indent++
	}
	prefix := strings.Repeat("\t", indent)
	for _, f := range b.Fields {
		sb.WriteString(prefix)
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		writeTextValue(sb, f.Value)
		sb.WriteByte('\n')
	}
	for _, child := range b.Blocks {
		sb.WriteString(prefix)
		child.writeText(sb, indent, false)
	}
	if !root {
		sb.WriteString(strings.Repeat("\t", indent-1))
		sb.WriteString("}\n")
	}
}

// Per-kind markers of the text form. They match what the engine's own
// plain-text writer emits.
func writeTextValue(sb *strings.Builder, v Value) {
	switch x := v.(type) {
	case Str:
		sb.WriteString("t=")
		sb.WriteString(strconv.Quote(string(x)))
	case Int:
		sb.WriteString("i=")
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case Long:
		sb.WriteString("i64=")
		sb.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		sb.WriteString("r=")
		sb.WriteString(formatFloat(float32(x)))
	case Float2:
		sb.WriteString("p2=")
		writeFloats(sb, x[:])
	case Float3:
		sb.WriteString("p3=")
		writeFloats(sb, x[:])
	case Float4:
		sb.WriteString("p4=")
		writeFloats(sb, x[:])
	case Int2:
		sb.WriteString("ip2=")
		writeInts(sb, x[:])
	case Int3:
		sb.WriteString("ip3=")
		writeInts(sb, x[:])
	case Bool:
		sb.WriteString("b=")
		sb.WriteString(strconv.FormatBool(bool(x)))
	case Color:
		sb.WriteString("c=")
		writeInts(sb, []int32{int32(x.R), int32(x.G), int32(x.B), int32(x.A)})
	case Float12:
		sb.WriteString("m=")
		for row := 0; row < 4; row++ {
			if row > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteByte('[')
			writeFloats(sb, x[row*3:row*3+3])
			sb.WriteByte(']')
		}
	}
}

func writeFloats(sb *strings.Builder, fs []float32) {
	for i, f := range fs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatFloat(f))
	}
}

func writeInts(sb *strings.Builder, ns []int32) {
	for i, n := range ns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(int64(n), 10))
	}
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

// --------------------------------------------------------------------

// JSON renders the tree as a JSON object. Field and block order is
// preserved and duplicated names are emitted as duplicated keys, which is
// why the document is assembled by hand instead of through a map.
func (b *Block) JSON() []byte {
	return b.appendJSON(nil, 0)
}

func (b *Block) appendJSON(dst []byte, indent int) []byte {
	if len(b.Fields) == 0 && len(b.Blocks) == 0 {
		return append(dst, "{}"...)
	}

	dst = append(dst, '{')
	inner := strings.Repeat("  ", indent+1)
	n := 0
	for _, f := range b.Fields {
		dst = jsonEntry(dst, inner, f.Name, n)
		dst = appendJSONValue(dst, f.Value)
		n++
	}
	for _, child := range b.Blocks {
		dst = jsonEntry(dst, inner, child.Name, n)
		dst = child.appendJSON(dst, indent+1)
		n++
	}
	dst = append(dst, '\n')
	dst = append(dst, strings.Repeat("  ", indent)...)
	return append(dst, '}')
}

func jsonEntry(dst []byte, indent, name string, n int) []byte {
	if n > 0 {
		dst = append(dst, ',')
	}
	dst = append(dst, '\n')
	dst = append(dst, indent...)
	dst = appendJSONString(dst, name)
	return append(dst, ": "...)
}

func appendJSONValue(dst []byte, v Value) []byte {
	switch x := v.(type) {
	case Str:
		return appendJSONString(dst, string(x))
	case Int:
		return strconv.AppendInt(dst, int64(x), 10)
	case Long:
		return strconv.AppendInt(dst, int64(x), 10)
	case Float:
		return strconv.AppendFloat(dst, float64(x), 'g', -1, 32)
	case Float2:
		return appendJSONFloats(dst, x[:])
	case Float3:
		return appendJSONFloats(dst, x[:])
	case Float4:
		return appendJSONFloats(dst, x[:])
	case Int2:
		return appendJSONInts(dst, x[:])
	case Int3:
		return appendJSONInts(dst, x[:])
	case Bool:
		return strconv.AppendBool(dst, bool(x))
	case Color:
		return appendJSONInts(dst, []int32{int32(x.R), int32(x.G), int32(x.B), int32(x.A)})
	case Float12:
		dst = append(dst, '[')
		for row := 0; row < 4; row++ {
			if row > 0 {
				dst = append(dst, ", "...)
			}
			dst = appendJSONFloats(dst, x[row*3:row*3+3])
		}
		return append(dst, ']')
	}
	return append(dst, "null"...)
}

func appendJSONFloats(dst []byte, fs []float32) []byte {
	dst = append(dst, '[')
	for i, f := range fs {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = strconv.AppendFloat(dst, float64(f), 'g', -1, 32)
	}
	return append(dst, ']')
}

func appendJSONInts(dst []byte, ns []int32) []byte {
	dst = append(dst, '[')
	for i, n := range ns {
		if i > 0 {
			dst = append(dst, ", "...)
		}
		dst = strconv.AppendInt(dst, int64(n), 10)
	}
	return append(dst, ']')
}

func appendJSONString(dst []byte, s string) []byte {
	// json.Marshal of a string cannot fail and produces proper escaping.
	raw, _ := json.Marshal(s)
	return append(dst, raw...)
}
