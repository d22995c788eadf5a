package imapcore

import (
	"fmt"
	"strings"

	"github.com/postalcore/postal/midb"
)

// flagNames lists the five flags a STORE/FETCH may name, in the fixed
// order imap_cmd_parser_convert_flags_string emits them.
var flagNames = []struct {
	name string
	bit  midb.Flags
}{
	{"\\Answered", midb.FlagAnswered},
	{"\\Flagged", midb.FlagFlagged},
	{"\\Deleted", midb.FlagDeleted},
	{"\\Seen", midb.FlagSeen},
	{"\\Draft", midb.FlagDraft},
}

// formatFlags renders the permanent-flag part of a FETCH FLAGS response,
// "(\Seen \Flagged)", matching imap_cmd_parser_convert_flags_string.
func formatFlags(f midb.Flags) string {
	var parts []string
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			parts = append(parts, fn.name)
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// parseFlagList parses a parenthesized or single flag-name list into a
// Flags bitmask, rejecting any name outside the five IMAP system flags —
// imap_cmd_parser_store's flag_bits loop, which returns code 1807 on an
// unrecognized flag.
func parseFlagList(names []string) (midb.Flags, error) {
	var flags midb.Flags
	for _, name := range names {
		var found bool
		for _, fn := range flagNames {
			if strings.EqualFold(name, fn.name) {
				flags |= fn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("imapcore: unsupported flag %q", name)
		}
	}
	return flags, nil
}

// storeOp maps STORE's three verbs (FLAGS/+FLAGS/-FLAGS, each with an
// optional ".SILENT" suffix) to a FlagOp and whether untagged FETCH
// responses should be suppressed.
func storeOp(verb string) (op midb.FlagOp, silent bool, ok bool) {
	v := strings.ToUpper(verb)
	silent = strings.HasSuffix(v, ".SILENT")
	v = strings.TrimSuffix(v, ".SILENT")
	switch v {
	case "FLAGS":
		return midb.FlagOpReplace, silent, true
	case "+FLAGS":
		return midb.FlagOpAdd, silent, true
	case "-FLAGS":
		return midb.FlagOpRemove, silent, true
	default:
		return 0, false, false
	}
}
