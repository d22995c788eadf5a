package ical

import (
	"fmt"
	"io"
	"strings"
)

// maxLine is the folding width ical_serialize_component uses (73 content
// octets per RFC 5545 §3.1's 75-octet-including-CRLF recommendation).
const maxLine = 73

// Serialize writes c and its descendants as an iCalendar stream, folding
// long lines per RFC 5545 §3.1. Grounded on ical_serialize_component's
// recursive BEGIN/.../END emission.
func Serialize(c *Component, w io.Writer) error {
	if err := writeFolded(w, "BEGIN:"+c.Name); err != nil {
		return err
	}
	for _, l := range c.Lines {
		if err := writeFolded(w, serializeLine(l)); err != nil {
			return err
		}
	}
	for _, ch := range c.Children {
		if err := Serialize(ch, w); err != nil {
			return err
		}
	}
	return writeFolded(w, "END:"+c.Name)
}

func serializeLine(l *Line) string {
	var b strings.Builder
	b.WriteString(l.Name)
	for _, p := range l.Params {
		b.WriteByte(';')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(strings.Join(p.Values, ","))
	}
	b.WriteByte(':')
	for i, v := range l.Values {
		if i > 0 {
			b.WriteByte(';')
		}
		if v.Name != "" {
			b.WriteString(v.Name)
			b.WriteByte('=')
		}
		b.WriteString(serializeSubValues(v.SubValues))
	}
	return b.String()
}

func serializeSubValues(subs []SubValue) string {
	parts := make([]string, len(subs))
	for i, s := range subs {
		if s.IsNil {
			parts[i] = ""
			continue
		}
		parts[i] = escapeSubValue(s.Text)
	}
	return strings.Join(parts, ",")
}

// escapeSubValue is the inverse of splitSubValues' unescaping.
func escapeSubValue(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\r':
			if i+1 < len(s) && s[i+1] == '\n' {
				b.WriteString(`\n`)
				i++
			} else {
				b.WriteString(`\n`)
			}
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// writeFolded writes line folded to maxLine octets per segment, each
// continuation prefixed with a single space, terminated CRLF.
func writeFolded(w io.Writer, line string) error {
	for len(line) > maxLine {
		if _, err := fmt.Fprintf(w, "%s\r\n", line[:maxLine]); err != nil {
			return err
		}
		line = " " + line[maxLine:]
	}
	_, err := fmt.Fprintf(w, "%s\r\n", line)
	return err
}
