// Package bounce renders localized non-delivery and read-receipt messages
// from templated resources, the bounce/DSN producer of spec.md §4.6.
// Grounded on _examples/original_source/exch/exmdb_provider/bounce_producer.cpp:
// the charset-subdirectory template load, the ascending-sorted tag-offset
// table built at load time, and the multipart/report assembly built on top
// of it. The RCU-style refresh (build a fresh list, then swap the root
// pointer) is kept but expressed with sync/atomic.Pointer instead of the
// original's std::shared_mutex.
package bounce

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message/textproto"
)

// Type is a bounce-message kind, indexing into a charset's template set.
type Type int

const (
	AutoResponse Type = iota
	MailTooLarge
	CannotDisplay
	GenericError
	numTypes
)

// fileNames are the four exact on-disk file names bounce_producer_refresh
// requires, in Type order.
var fileNames = [numTypes]string{
	AutoResponse:  "BOUNCE_AUTO_RESPONSE",
	MailTooLarge:  "BOUNCE_MAIL_TOO_LARGE",
	CannotDisplay: "BOUNCE_CANNOT_DISPLAY",
	GenericError:  "BOUNCE_GENERIC_ERROR",
}

const maxTemplateSize = 64 * 1024

// tag is one of the six substitution markers a template body may contain.
type tag int

const (
	tagTime tag = iota
	tagFrom
	tagRcpt
	tagSubject
	tagParts
	tagLength
	numTags
)

var tagNames = [numTags]string{
	tagTime:    "<time>",
	tagFrom:    "<from>",
	tagRcpt:    "<rcpt>",
	tagSubject: "<subject>",
	tagParts:   "<parts>",
	tagLength:  "<length>",
}

// tagPos is one tag's byte offset within a template body.
type tagPos struct {
	tag tag
	pos int
}

// template is one parsed bounce-type file: its header fields plus the
// body split into static spans interleaved with tag substitution points,
// already sorted ascending by offset.
type template struct {
	from        string
	subject     string
	contentType string
	body        []byte
	tags        []tagPos // ascending by pos; each tag appears at most once
}

// charsetSet is every bounce Type's parsed template for one charset
// subdirectory.
type charsetSet struct {
	charset   string
	templates [numTypes]*template
}

// templateSet is the full, immutable result of one Refresh: every loaded
// charset plus a pointer to the mandatory "ascii" default.
type templateSet struct {
	byCharset map[string]*charsetSet
	def       *charsetSet
}

// loadTemplateSet scans dataPath/mail_bounce for charset subdirectories,
// mirroring bounce_producer_check_subdir/bounce_producer_load_subdir: a
// subdirectory only contributes if it contains all four named files,
// each under maxTemplateSize.
func loadTemplateSet(dataPath string) (*templateSet, error) {
	root := filepath.Join(dataPath, "mail_bounce")
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("bounce: opendir %s: %w", root, err)
	}

	set := &templateSet{byCharset: map[string]*charsetSet{}}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		cs, err := loadCharsetDir(dir, entry.Name())
		if err != nil {
			continue // a malformed subdirectory is skipped, not fatal
		}
		if cs == nil {
			continue
		}
		set.byCharset[strings.ToLower(entry.Name())] = cs
		if strings.EqualFold(entry.Name(), "ascii") {
			set.def = cs
		}
	}

	if set.def == nil {
		return nil, fmt.Errorf("bounce: no \"ascii\" bounce templates found under %s", root)
	}
	return set, nil
}

// loadCharsetDir loads one subdirectory, returning (nil, nil) if it lacks
// one of the four required files (the "not a valid charset dir" case,
// which the original silently skips).
func loadCharsetDir(dir, charset string) (*charsetSet, error) {
	cs := &charsetSet{charset: charset}
	for t, name := range fileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() >= maxTemplateSize {
			return nil, nil
		}
		tpl, err := loadTemplateFile(path)
		if err != nil {
			return nil, err
		}
		cs.templates[t] = tpl
	}
	return cs, nil
}

func loadTemplateFile(path string) (*template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("bounce: %s: parsing header: %w", path, err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("bounce: %s: reading body: %w", path, err)
	}

	tags, err := scanTags(body)
	if err != nil {
		return nil, fmt.Errorf("bounce: %s: %w", path, err)
	}

	return &template{
		from:        hdr.Get("From"),
		subject:     hdr.Get("Subject"),
		contentType: hdr.Get("Content-Type"),
		body:        body,
		tags:        tags,
	}, nil
}

// scanTags finds every tag in body and returns them sorted ascending by
// position; duplicate tags are rejected, matching spec.md §4.6's "body
// may contain any subset of the six tags... duplicate tags are not
// supported."
func scanTags(body []byte) ([]tagPos, error) {
	seen := [numTags]bool{}
	var found []tagPos

	s := string(body)
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			continue
		}
		for t, name := range tagNames {
			if strings.HasPrefix(strings.ToLower(s[i:]), name) {
				if seen[t] {
					return nil, fmt.Errorf("duplicate tag %s", name)
				}
				seen[t] = true
				found = append(found, tagPos{tag: tag(t), pos: i})
				break
			}
		}
	}

	return found, nil
}
