package imapcore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/postalcore/postal/midb"
)

// fetchNeedsDetail reports whether any requested data item needs the
// full message body rather than just Seq/UID/Flags — the split
// imap_cmd_parser_fetch makes between system_services_fetch_simple and
// system_services_fetch_detail.
func fetchNeedsDetail(items []string) bool {
	for _, it := range items {
		switch {
		case it == "FLAGS" || it == "UID":
			continue
		default:
			return true
		}
	}
	return false
}

// expandFetchMacro expands ALL/FAST/FULL into their constituent data
// items, matching imap_cmd_parser_fetch's fixed macro tables.
func expandFetchMacro(items []string) []string {
	if len(items) != 1 {
		return items
	}
	switch strings.ToUpper(items[0]) {
	case "ALL":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE"}
	case "FAST":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE"}
	case "FULL":
		return []string{"FLAGS", "INTERNALDATE", "RFC822.SIZE", "ENVELOPE", "BODY"}
	default:
		return items
	}
}

// parseFetchItems splits a FETCH data-item list, which is either a bare
// name (FLAGS), or a parenthesized list (FLAGS UID), with no awareness
// of BODY[...] section nesting beyond treating the whole bracketed token
// as one item — sufficient for the BODY/BODY.PEEK[HEADER]-shaped cases
// this core's Non-goals (a full MIME section tree per SPEC_FULL §9)
// leave in scope as "return the whole message".
func parseFetchItems(rest string) []string {
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, "(")
	rest = strings.TrimSuffix(rest, ")")
	var items []string
	depth := 0
	var cur strings.Builder
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		switch c {
		case '[':
			depth++
			cur.WriteByte(c)
		case ']':
			depth--
			cur.WriteByte(c)
		case ' ':
			if depth == 0 {
				if cur.Len() > 0 {
					items = append(items, cur.String())
					cur.Reset()
				}
				continue
			}
			cur.WriteByte(c)
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		items = append(items, cur.String())
	}
	return items
}

func doFetch(ctx context.Context, s *Session, tag, rest string, byUID bool) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 2)
	if len(fields) < 2 {
		return []string{tag + " BAD FETCH requires a sequence set and data items"}
	}
	seqs, err := parseSequence(fields[0])
	if err != nil {
		return []string{tag + " BAD " + err.Error()}
	}
	items := expandFetchMacro(parseFetchItems(fields[1]))

	var msgs []midb.MessageItem
	if fetchNeedsDetail(items) {
		msgs, err = s.Index.FetchDetail(ctx, s.account, s.folder, seqs, byUID)
	} else {
		msgs, err = s.Index.FetchSimple(ctx, s.account, s.folder, seqs, byUID)
	}
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}

	var lines []string
	for _, m := range msgs {
		lines = append(lines, formatFetchResponse(m, items, byUID))
	}
	lines = append(lines, tag+" OK FETCH completed")
	return lines
}

func formatFetchResponse(m midb.MessageItem, items []string, byUID bool) string {
	var parts []string
	for _, it := range items {
		switch {
		case it == "FLAGS":
			parts = append(parts, "FLAGS "+formatFlags(m.Flags))
		case it == "UID":
			parts = append(parts, fmt.Sprintf("UID %d", m.UID))
		case it == "INTERNALDATE":
			parts = append(parts, fmt.Sprintf("INTERNALDATE %q", m.InternalDate.Format(time.RFC1123Z)))
		case it == "RFC822.SIZE":
			parts = append(parts, fmt.Sprintf("RFC822.SIZE %d", m.Size))
		case it == "RFC822" || it == "BODY[]":
			parts = append(parts, fmt.Sprintf("RFC822 {%d}\r\n%s", len(m.Raw), m.Raw))
		case strings.HasPrefix(it, "BODY") || strings.HasPrefix(it, "BODYSTRUCTURE") || it == "ENVELOPE":
			parts = append(parts, fmt.Sprintf("%s {%d}\r\n%s", it, len(m.Raw), m.Raw))
		}
	}
	if byUID {
		hasUID := false
		for _, it := range items {
			if it == "UID" {
				hasUID = true
			}
		}
		if !hasUID {
			parts = append([]string{fmt.Sprintf("UID %d", m.UID)}, parts...)
		}
	}
	return fmt.Sprintf("* %d FETCH (%s)", m.Seq, strings.Join(parts, " "))
}

func doStore(ctx context.Context, s *Session, tag, rest string, byUID bool) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if s.readOnly {
		return []string{tag + " NO mailbox is read-only"}
	}
	fields := strings.SplitN(strings.TrimSpace(rest), " ", 3)
	if len(fields) < 3 {
		return []string{tag + " BAD STORE requires a sequence set, item name, and flag list"}
	}
	seqs, err := parseSequence(fields[0])
	if err != nil {
		return []string{tag + " BAD " + err.Error()}
	}
	op, silent, ok := storeOp(fields[1])
	if !ok {
		return []string{tag + " BAD unrecognized STORE item " + fields[1]}
	}
	flags, err := parseFlagList(parseFetchItems(fields[2]))
	if err != nil {
		return []string{tag + " BAD " + err.Error()}
	}

	updated, err := s.Index.StoreFlags(ctx, s.account, s.folder, seqs, byUID, op, flags)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	s.Publish.Publish("STORE", s.account, s.folder, "")

	var lines []string
	if !silent {
		for _, m := range updated {
			lines = append(lines, formatFetchResponse(m, []string{"FLAGS"}, byUID))
		}
	}
	lines = append(lines, tag+" OK STORE completed")
	return lines
}

func doSearch(ctx context.Context, s *Session, tag, rest string, byUID bool) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	crit := parseSearchCriteria(tokenize(rest))

	matches, err := s.Index.Search(ctx, s.account, s.folder, crit, byUID)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}

	nums := make([]string, len(matches))
	for i, n := range matches {
		nums[i] = fmt.Sprintf("%d", n)
	}
	return []string{
		"* SEARCH " + strings.Join(nums, " "),
		tag + " OK SEARCH completed",
	}
}

// parseSearchCriteria supports the subset of SEARCH keys midb.Index
// exposes: ALL and the five system flags (each either bare, meaning
// "is set", or prefixed UN, meaning "is not set").
func parseSearchCriteria(keys []string) midb.SearchCriteria {
	var crit midb.SearchCriteria
	truth := true
	falsity := false
	for i := 0; i < len(keys); i++ {
		switch strings.ToUpper(keys[i]) {
		case "ALL":
			crit.All = true
		case "SEEN":
			crit.Seen = &truth
		case "UNSEEN":
			crit.Seen = &falsity
		case "DELETED":
			crit.Deleted = &truth
		case "UNDELETED":
			crit.Deleted = &falsity
		case "ANSWERED":
			crit.Answered = &truth
		case "UNANSWERED":
			crit.Answered = &falsity
		case "FLAGGED":
			crit.Flagged = &truth
		case "UNFLAGGED":
			crit.Flagged = &falsity
		case "DRAFT":
			crit.Draft = &truth
		case "UNDRAFT":
			crit.Draft = &falsity
		case "SUBJECT":
			if i+1 < len(keys) {
				i++
				crit.Subject = keys[i]
			}
		}
	}
	return crit
}

// cmdAppend implements APPEND folder [flags] [date] {n}-literal — the
// literal itself is expected to already be resolved into rest by the
// connection layer, the same simplification doFetch/doStore make for
// BODY[] sections.
func cmdAppend(ctx context.Context, s *Session, tag, rest string) []string {
	if err := s.requireAuthenticated(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) < 2 {
		return []string{tag + " BAD APPEND requires a mailbox and message"}
	}
	folder := strings.Trim(fields[0], "\"")
	body := fields[1]

	var flags midb.Flags
	if idx := strings.Index(body, "("); idx == 0 {
		end := strings.Index(body, ")")
		if end < 0 {
			return []string{tag + " BAD malformed flag list"}
		}
		var err error
		flags, err = parseFlagList(parseFetchItems(body[:end+1]))
		if err != nil {
			return []string{tag + " BAD " + err.Error()}
		}
		body = strings.TrimSpace(body[end+1:])
	}

	exists, err := s.Index.FolderExists(ctx, s.account, folder)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if !exists {
		return []string{tag + " NO [TRYCREATE] mailbox does not exist"}
	}

	uid, err := s.Index.Append(ctx, s.account, folder, []byte(body), flags, time.Time{})
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	s.Publish.Publish("APPEND", s.account, folder, fmt.Sprint(uid))

	return []string{tag + " OK [APPENDUID 1 " + fmt.Sprint(uid) + "] APPEND completed"}
}
