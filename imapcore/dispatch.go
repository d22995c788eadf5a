package imapcore

import (
	"context"
	"fmt"
	"strings"
)

// Handle parses one client command line (already stripped of its
// trailing CRLF) and returns the full response: zero or more untagged
// lines followed by exactly one tagged completion line. It never
// returns a Go error for a malformed command — those become a tagged
// BAD/NO response, matching imap_cmd_parser's own convention of
// reporting protocol errors as replies, not exceptions. The one exception
// is a line with no tag or no verb: it gets a single untagged "* BAD"
// line and no tagged completion.
func (s *Session) Handle(ctx context.Context, line string) []string {
	tag, verb, rest, err := parseCommandLine(line)
	if err != nil {
		return []string{"* BAD " + err.Error()}
	}
	if tag == "" {
		tag = "*"
	}

	h, ok := commandTable[strings.ToUpper(verb)]
	if !ok {
		return []string{fmt.Sprintf("%s BAD unrecognized command %q", tag, verb)}
	}
	return h(ctx, s, tag, rest)
}

// parseCommandLine splits "TAG VERB rest..." into its three parts. A
// leading tag is mandatory except for the continuation case (an empty
// line mid-literal), which callers outside Handle deal with directly.
func parseCommandLine(line string) (tag, verb, rest string, err error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return "", "", "", fmt.Errorf("empty command line")
	}
	tag = fields[0]
	if len(fields) == 1 {
		return tag, "", "", fmt.Errorf("missing command verb")
	}
	remainder := strings.TrimLeft(fields[1], " ")
	verbFields := strings.SplitN(remainder, " ", 2)
	verb = verbFields[0]
	if len(verbFields) == 2 {
		rest = verbFields[1]
	}
	return tag, verb, rest, nil
}

// tokenize splits a command's argument string into space-separated
// tokens, honoring "quoted strings" as single tokens the way
// imap_cmd_parser's own argument scanner does (it does not handle IMAP
// literals — a {n}\r\n-prefixed argument — since the connection layer
// above Session is expected to have already resolved those into plain
// strings before calling Handle).
func tokenize(s string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == ' ' && !inQuote:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

type commandHandler func(ctx context.Context, s *Session, tag, rest string) []string

var commandTable = map[string]commandHandler{
	"CAPABILITY": cmdCapability,
	"NOOP":       cmdNoop,
	"LOGOUT":     cmdLogout,
	"LOGIN":      cmdLogin,
	"SELECT":     cmdSelect,
	"EXAMINE":    cmdExamine,
	"CLOSE":      cmdClose,
	"UNSELECT":   cmdUnselect,
	"EXPUNGE":    cmdExpunge,
	"CHECK":      cmdCheck,
	"FETCH":      cmdFetch,
	"UID":        cmdUID,
	"STORE":      cmdStore,
	"SEARCH":     cmdSearch,
	"APPEND":     cmdAppend,
}

// capabilityLine is imap_cmd_parser's fixed CAPABILITY announcement,
// minus extensions this core doesn't implement (IDLE, LITERAL+, etc.
// live in the endpoint wiring that terminates TLS and pipelines reads,
// not in dispatch itself).
const capabilityLine = "* CAPABILITY IMAP4rev1 AUTH=PLAIN"

func cmdCapability(ctx context.Context, s *Session, tag, rest string) []string {
	return []string{capabilityLine, tag + " OK CAPABILITY completed"}
}

func cmdNoop(ctx context.Context, s *Session, tag, rest string) []string {
	return []string{tag + " OK NOOP completed"}
}

func cmdLogout(ctx context.Context, s *Session, tag, rest string) []string {
	s.state = stateNotAuthenticated
	s.unselect()
	return []string{"* BYE logging out", tag + " OK LOGOUT completed"}
}

func cmdLogin(ctx context.Context, s *Session, tag, rest string) []string {
	args := tokenize(rest)
	if len(args) != 2 {
		return []string{tag + " BAD LOGIN expects two arguments"}
	}
	if !s.login(args[0], args[1]) {
		return []string{tag + " NO LOGIN failed"}
	}
	s.state = stateAuthenticated
	s.account = args[0]
	return []string{tag + " OK LOGIN completed"}
}

// doSelect builds the untagged block SELECT and EXAMINE share — FLAGS,
// PERMANENTFLAGS, EXISTS, RECENT, UNSEEN, UIDVALIDITY, UIDNEXT — in the
// order imap_cmd_parser_select/examine emit them, then the tagged
// completion naming which of the two ran.
func doSelect(ctx context.Context, s *Session, tag, rest string, readOnly bool) []string {
	folder := strings.Trim(rest, "\" ")
	if folder == "" {
		return []string{tag + " BAD " + selectVerbName(readOnly) + " requires a mailbox name"}
	}
	if err := s.requireAuthenticated(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	exists, err := s.Index.FolderExists(ctx, s.account, folder)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if !exists {
		return []string{tag + " NO mailbox does not exist"}
	}

	summary, err := s.selectFolder(ctx, folder, readOnly)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}

	lines := []string{
		"* FLAGS (\\Answered \\Flagged \\Deleted \\Seen \\Draft)",
		"* OK [PERMANENTFLAGS (\\Answered \\Flagged \\Deleted \\Seen \\Draft)] Limited",
		fmt.Sprintf("* %d EXISTS", summary.Exists),
		fmt.Sprintf("* %d RECENT", summary.Recent),
	}
	if summary.FirstUnseen >= 0 {
		lines = append(lines, fmt.Sprintf("* OK [UNSEEN %d] message %d is first unseen", summary.FirstUnseen, summary.FirstUnseen))
	}
	lines = append(lines,
		fmt.Sprintf("* OK [UIDVALIDITY %d] UIDs valid", summary.UIDValidity),
		fmt.Sprintf("* OK [UIDNEXT %d] predicted next UID", summary.UIDNext),
	)

	access := "READ-WRITE"
	if readOnly {
		access = "READ-ONLY"
	}
	lines = append(lines, fmt.Sprintf("%s OK [%s] %s completed", tag, access, selectVerbName(readOnly)))
	return lines
}

func selectVerbName(readOnly bool) string {
	if readOnly {
		return "EXAMINE"
	}
	return "SELECT"
}

func cmdSelect(ctx context.Context, s *Session, tag, rest string) []string {
	return doSelect(ctx, s, tag, rest, false)
}

func cmdExamine(ctx context.Context, s *Session, tag, rest string) []string {
	return doSelect(ctx, s, tag, rest, true)
}

func cmdUnselect(ctx context.Context, s *Session, tag, rest string) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	s.unselect()
	return []string{tag + " OK UNSELECT completed"}
}

// cmdClose is UNSELECT plus a silent EXPUNGE — imap_cmd_parser_close's
// behavior — but it is rejected outright on a read-only mailbox (code
// 1806), unlike EXPUNGE's own explicit rejection path.
func cmdClose(ctx context.Context, s *Session, tag, rest string) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if s.readOnly {
		return []string{tag + " NO mailbox is read-only"}
	}
	if err := expungeDeleted(ctx, s); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	s.unselect()
	return []string{tag + " OK CLOSE completed"}
}

func cmdCheck(ctx context.Context, s *Session, tag, rest string) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	return []string{tag + " OK CHECK completed"}
}

// expungeDeleted removes every \Deleted message from the selected
// folder without emitting untagged EXPUNGE responses (used by CLOSE,
// which discards them per RFC 3501 §6.4.2).
func expungeDeleted(ctx context.Context, s *Session) error {
	items, err := s.Index.ListDeleted(ctx, s.account, s.folder)
	if err != nil {
		return err
	}
	seqs := make([]int, len(items))
	for i, it := range items {
		seqs[i] = it.Seq
	}
	return s.Index.RemoveMail(ctx, s.account, s.folder, seqs)
}

// cmdExpunge removes every \Deleted message and emits one untagged
// "* N EXPUNGE" per removal, in descending sequence order so earlier
// numbers stay meaningful as later ones are announced — the same
// renumbering imap_cmd_parser_expunge performs by subtracting del_num
// from each id as it walks the list.
func cmdExpunge(ctx context.Context, s *Session, tag, rest string) []string {
	if err := s.requireSelected(); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if s.readOnly {
		return []string{tag + " NO mailbox is read-only"}
	}

	items, err := s.Index.ListDeleted(ctx, s.account, s.folder)
	if err != nil {
		return []string{tag + " NO " + err.Error()}
	}

	// Sort descending by Seq so removal renumbering can't invalidate an
	// announcement we've already made.
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if items[j].Seq > items[i].Seq {
				items[i], items[j] = items[j], items[i]
			}
		}
	}

	var lines []string
	seqs := make([]int, 0, len(items))
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("* %d EXPUNGE", it.Seq))
		seqs = append(seqs, it.Seq)
	}
	if err := s.Index.RemoveMail(ctx, s.account, s.folder, seqs); err != nil {
		return []string{tag + " NO " + err.Error()}
	}
	if len(seqs) > 0 {
		s.Publish.Publish("EXPUNGE", s.account, s.folder, "")
	}

	lines = append(lines, tag+" OK EXPUNGE completed")
	return lines
}

// cmdUID re-dispatches FETCH/STORE/SEARCH/EXPUNGE with byUID semantics,
// mirroring how imap_cmd_parser's UID-prefixed commands share their
// non-UID counterparts' bodies with a flag flipped.
func cmdUID(ctx context.Context, s *Session, tag, rest string) []string {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) == 0 || fields[0] == "" {
		return []string{tag + " BAD UID requires a subcommand"}
	}
	sub := strings.ToUpper(fields[0])
	var subRest string
	if len(fields) == 2 {
		subRest = fields[1]
	}
	switch sub {
	case "FETCH":
		return doFetch(ctx, s, tag, subRest, true)
	case "STORE":
		return doStore(ctx, s, tag, subRest, true)
	case "SEARCH":
		return doSearch(ctx, s, tag, subRest, true)
	case "COPY":
		return []string{tag + " NO UID COPY not supported"}
	case "EXPUNGE":
		return cmdExpunge(ctx, s, tag, "")
	default:
		return []string{tag + " BAD unrecognized UID subcommand"}
	}
}

func cmdFetch(ctx context.Context, s *Session, tag, rest string) []string {
	return doFetch(ctx, s, tag, rest, false)
}

func cmdStore(ctx context.Context, s *Session, tag, rest string) []string {
	return doStore(ctx, s, tag, rest, false)
}

func cmdSearch(ctx context.Context, s *Session, tag, rest string) []string {
	return doSearch(ctx, s, tag, rest, false)
}
