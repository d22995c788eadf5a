package bounce

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxPartsLen = 128 * 1024

// Request is the caller-supplied rendering context: everything Render
// needs about the sender, recipient, and message, independent of how the
// caller (submit, imapcore) derived it from the store.
type Request struct {
	From, Rcpt string
	Subject    string
	Size       int64

	// AttachmentNames feeds <parts>, joined with Separator and capped at
	// maxPartsLen, mirroring bounce_producer_get_mail_parts.
	AttachmentNames []string
	Separator       string

	// Charset is the user's preferred charset from a lang lookup; empty
	// means "unknown, fall back to CPID".
	Charset string
	// CPID is PR_INTERNET_CPID, consulted only when Charset is empty.
	CPID uint32

	// Location, if non-nil, renders <time> in the user's timezone;
	// nil renders in UTC.
	Location *time.Location
	// Now is the instant to format into <time>; the zero value means
	// "use time.Now()".
	Now time.Time
}

// rendered is one Render call's output: the substituted body plus the
// header fields the template carried.
type rendered struct {
	body        []byte
	from        string
	subject     string
	contentType string
}

// render substitutes every tag in tpl's body for req, in the tag's
// recorded position order — the tags are already sorted ascending, so a
// single left-to-right pass over the static spans suffices, mirroring
// bounce_producer_make_content's prev_pos walk.
func render(tpl *template, req Request, t Type) rendered {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	var out strings.Builder
	prev := 0
	for _, tp := range tpl.tags {
		out.Write(tpl.body[prev:tp.pos])
		out.WriteString(substitution(tp.tag, req, now, loc))
		prev = tp.pos + len(tagNames[tp.tag])
	}
	out.Write(tpl.body[prev:])

	return rendered{
		body:        []byte(out.String()),
		from:        tpl.from,
		subject:     tpl.subject,
		contentType: tpl.contentType,
	}
}

func substitution(t tag, req Request, now time.Time, loc *time.Location) string {
	switch t {
	case tagTime:
		suffix := ""
		if loc != time.UTC {
			suffix = " " + loc.String()
		}
		return now.In(loc).Format("01/02/06 15:04:05") + suffix
	case tagFrom:
		return req.From
	case tagRcpt:
		return req.Rcpt
	case tagSubject:
		return req.Subject
	case tagParts:
		return joinParts(req.AttachmentNames, req.Separator)
	case tagLength:
		return formatByteSize(req.Size)
	default:
		return ""
	}
}

// joinParts joins names with sep, truncating whole names (never a
// partial name) once the running length would exceed maxPartsLen, as
// bounce_producer_get_mail_parts does with its "offset + tmp_len < cap"
// check.
func joinParts(names []string, sep string) string {
	var b strings.Builder
	first := true
	for _, name := range names {
		add := name
		if !first {
			add = sep + name
		}
		if b.Len()+len(add) >= maxPartsLen {
			break
		}
		b.WriteString(add)
		first = false
	}
	return b.String()
}

// formatByteSize renders n bytes in the "1.2K"-style short form spec.md
// §4.6 names for <length>.
func formatByteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	suffixes := "KMGTPE"
	value := float64(n) / float64(div)
	return fmt.Sprintf("%.1f%c", value, suffixes[exp])
}
