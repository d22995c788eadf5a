package ical

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Parse reads an iCalendar stream and returns its root component (normally
// VCALENDAR). Grounded on ical_init_component/ical_new_component's BEGIN/END
// nesting and ical_retrieve_tag's line-splitting, with RFC 5545 §3.1 line
// unfolding (a CRLF followed by a single space or tab is a continuation)
// done first, the way the original's getline-then-retrieve-tag split does.
func Parse(r io.Reader) (*Component, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}

	var stack []*Component
	var root *Component
	for _, raw := range lines {
		if raw == "" {
			continue
		}
		name, params, values, err := splitTag(raw)
		if err != nil {
			return nil, err
		}

		switch strings.ToUpper(name) {
		case "BEGIN":
			if len(values) == 0 {
				return nil, fmt.Errorf("ical: BEGIN with no component name")
			}
			comp := &Component{Name: values[0].FirstSubValue()}
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.Children = append(top.Children, comp)
			}
			stack = append(stack, comp)
			if root == nil {
				root = comp
			}
		case "END":
			if len(stack) == 0 {
				return nil, fmt.Errorf("ical: END with no matching BEGIN")
			}
			stack = stack[:len(stack)-1]
		default:
			if len(stack) == 0 {
				return nil, fmt.Errorf("ical: content line %q outside any component", name)
			}
			top := stack[len(stack)-1]
			top.Lines = append(top.Lines, &Line{Name: name, Params: params, Values: values})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("ical: unterminated component %q", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, fmt.Errorf("ical: empty calendar stream")
	}
	return root, nil
}

// unfold reads CRLF- or LF-terminated lines and rejoins continuation lines
// (RFC 5545 §3.1: a line beginning with a space or tab is a continuation of
// the previous one, the leading whitespace itself discarded).
func unfold(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), 1<<20)

	var lines []string
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if raw == "" {
			continue
		}
		if (raw[0] == ' ' || raw[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ical: reading stream: %w", err)
	}
	return lines, nil
}

// splitTag splits one unfolded content line "NAME;P1=a,b;P2=c:V1;V2" into
// its name, parameter list, and value list. Grounded on ical_retrieve_tag:
// the line is first split on the first un-quoted ':' into a tag-and-params
// half and a value half; the tag-and-params half is split on ';' (quote
// aware) into the name followed by PARAM=vals segments; the value half is
// handed to splitValues.
func splitTag(line string) (name string, params []*Param, values []*Value, err error) {
	head, value, ok := splitUnquoted(line, ':')
	if !ok {
		return "", nil, nil, fmt.Errorf("ical: content line has no ':' separator: %q", line)
	}

	segs := splitSemicolonQuoted(head)
	if len(segs) == 0 || segs[0] == "" {
		return "", nil, nil, fmt.Errorf("ical: content line has no name: %q", line)
	}
	name = segs[0]

	for _, seg := range segs[1:] {
		pname, pval, ok := splitUnquoted(seg, '=')
		if !ok {
			return "", nil, nil, fmt.Errorf("ical: malformed parameter %q", seg)
		}
		params = append(params, &Param{Name: pname, Values: splitCommaQuoted(pval)})
	}

	base64 := false
	for _, p := range params {
		if strings.EqualFold(p.Name, "ENCODING") && strings.EqualFold(p.FirstValue(), "BASE64") {
			base64 = true
		}
	}

	values = splitValues(value, base64)
	return name, params, values, nil
}

// splitValues implements ical_retrieve_value: the value half is split on
// ';' (unless base64-encoded, in which case it is kept whole) into Values,
// each optionally of the form "NAME=sub,sub" (the NAME= form is used by a
// handful of tags such as RDATE's "VALUE=PERIOD"); each Value's remainder is
// then split into SubValues on ',' via splitSubValues.
func splitValues(value string, base64 bool) []*Value {
	if base64 {
		return []*Value{{SubValues: []SubValue{{Text: value}}}}
	}

	var out []*Value
	for _, part := range splitSemicolonQuoted(value) {
		v := &Value{}
		if idx := strings.IndexByte(part, '='); idx >= 0 && isValueName(part[:idx]) {
			v.Name = part[:idx]
			part = part[idx+1:]
		}
		v.SubValues = splitSubValues(part)
		out = append(out, v)
	}
	return out
}

// isValueName reports whether s looks like a bare identifier, the
// heuristic ical_retrieve_value uses to decide "name=value" vs. a value
// that merely contains an '=' character.
func isValueName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// splitSubValues implements ical_get_value_sep: split on ',' with escape
// handling (\\ -> \, \; -> ;, \, -> ",", \n/\N -> CRLF), and an empty
// element becomes an explicit NIL marker rather than an empty string.
func splitSubValues(s string) []SubValue {
	var out []SubValue
	var cur strings.Builder
	sawAny := false

	flush := func() {
		if cur.Len() == 0 {
			out = append(out, SubValue{IsNil: true})
		} else {
			out = append(out, SubValue{Text: cur.String()})
		}
		cur.Reset()
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		sawAny = true
		switch {
		case r == '\\' && i+1 < len(runes):
			next := runes[i+1]
			switch next {
			case '\\':
				cur.WriteByte('\\')
			case ';':
				cur.WriteByte(';')
			case ',':
				cur.WriteByte(',')
			case 'n', 'N':
				cur.WriteString("\r\n")
			default:
				cur.WriteRune(next)
			}
			i++
		case r == ',':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if sawAny || cur.Len() > 0 {
		flush()
	}
	return out
}

// splitSemicolonQuoted splits s on ';' except inside a double-quoted span
// (RFC 5545 allows quoted parameter values to contain otherwise-special
// characters), mirroring ical_get_tag_semicolon.
func splitSemicolonQuoted(s string) []string {
	return splitCharQuoted(s, ';')
}

// splitCommaQuoted splits s on ',' except inside a double-quoted span,
// mirroring ical_get_tag_comma.
func splitCommaQuoted(s string) []string {
	return splitCharQuoted(s, ',')
}

func splitCharQuoted(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == sep && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// splitUnquoted finds the first unquoted occurrence of sep and splits s
// there, returning ok=false if sep never occurs outside quotes.
func splitUnquoted(s string, sep byte) (before, after string, ok bool) {
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if c == sep && !inQuotes {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
