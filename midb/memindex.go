package midb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemIndex is an in-process reference Index: everything lives in memory,
// protected by a single mutex for the whole index. It exists for tests and the
// standalone postald binary's non-production mode — a real deployment
// talks to an actual midb daemon over its own socket protocol, which is
// out of scope per SPEC_FULL §10's on-disk-format Non-goal.
type MemIndex struct {
	mu       sync.Mutex
	accounts map[string]*mailbox
}

func NewMemIndex() *MemIndex {
	return &MemIndex{accounts: map[string]*mailbox{}}
}

type mailbox struct {
	folders map[string]*folder
}

type folder struct {
	uidValidity uint32
	uidNext     uint32
	messages    []*message // ordered by arrival; Seq is 1 + index, recomputed on remove
}

type message struct {
	uid          uint32
	flags        Flags
	internalDate time.Time
	raw          []byte
	recent       bool
}

func (idx *MemIndex) mailboxFor(account string) *mailbox {
	mb, ok := idx.accounts[account]
	if !ok {
		mb = &mailbox{folders: map[string]*folder{}}
		idx.accounts[account] = mb
	}
	return mb
}

func (idx *MemIndex) EnsureFolder(ctx context.Context, account, name string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	mb := idx.mailboxFor(account)
	if _, ok := mb.folders[name]; !ok {
		mb.folders[name] = &folder{uidValidity: uint32(time.Now().Unix()), uidNext: 1}
	}
	return nil
}

func (idx *MemIndex) FolderExists(ctx context.Context, account, name string) (bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	mb, ok := idx.accounts[account]
	if !ok {
		return false, nil
	}
	_, ok = mb.folders[name]
	return ok, nil
}

func (idx *MemIndex) folderFor(account, name string) (*folder, error) {
	mb, ok := idx.accounts[account]
	if !ok {
		return nil, fmt.Errorf("midb: no such account %q", account)
	}
	f, ok := mb.folders[name]
	if !ok {
		return nil, fmt.Errorf("midb: no such folder %q", name)
	}
	return f, nil
}

func (idx *MemIndex) Summary(ctx context.Context, account, name string) (Summary, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{UIDValidity: f.uidValidity, UIDNext: f.uidNext, FirstUnseen: -1}
	for i, m := range f.messages {
		s.Exists++
		if m.recent {
			s.Recent++
		}
		if s.FirstUnseen == -1 && m.flags&FlagSeen == 0 {
			s.FirstUnseen = i + 1
		}
	}
	return s, nil
}

// matchSeqs filters f.messages by seqs, interpreted either as
// folder-relative sequence numbers or UIDs, mirroring
// imap_cmd_parser_hint_sequence's per-message membership test.
func matchSeqs(f *folder, seqs []Range, byUID bool) []*indexedMessage {
	var out []*indexedMessage
	maxSeq := len(f.messages)
	for i, m := range f.messages {
		seq := i + 1
		key := seq
		if byUID {
			key = int(m.uid)
		}
		for _, r := range seqs {
			if inRange(key, r, maxSeq, byUID, f) {
				out = append(out, &indexedMessage{seq: seq, msg: m})
				break
			}
		}
	}
	return out
}

type indexedMessage struct {
	seq int
	msg *message
}

func inRange(key int, r Range, maxSeq int, byUID bool, f *folder) bool {
	max := r.Max
	if max == -1 {
		if byUID {
			max = int(f.uidNext) // unbounded upper edge for "N:*"
		} else {
			max = maxSeq
		}
	}
	min := r.Min
	if min == -1 {
		min = max
	}
	return key >= min && key <= max
}

func toItems(matches []*indexedMessage, detail bool) []MessageItem {
	items := make([]MessageItem, 0, len(matches))
	for _, im := range matches {
		item := MessageItem{Seq: im.seq, UID: im.msg.uid, Flags: im.msg.flags}
		if detail {
			item.InternalDate = im.msg.internalDate
			item.Size = len(im.msg.raw)
			item.Raw = im.msg.raw
		} else {
			item.Size = len(im.msg.raw)
		}
		items = append(items, item)
	}
	return items
}

func (idx *MemIndex) FetchSimple(ctx context.Context, account, name string, seqs []Range, byUID bool) ([]MessageItem, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return nil, err
	}
	return toItems(matchSeqs(f, seqs, byUID), false), nil
}

func (idx *MemIndex) FetchDetail(ctx context.Context, account, name string, seqs []Range, byUID bool) ([]MessageItem, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return nil, err
	}
	return toItems(matchSeqs(f, seqs, byUID), true), nil
}

func (idx *MemIndex) Search(ctx context.Context, account, name string, crit SearchCriteria, byUID bool) ([]uint32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return nil, err
	}

	var out []uint32
	for i, m := range f.messages {
		if !matchesCriteria(m, crit) {
			continue
		}
		if byUID {
			out = append(out, m.uid)
		} else {
			out = append(out, uint32(i+1))
		}
	}
	return out, nil
}

func matchesCriteria(m *message, crit SearchCriteria) bool {
	if crit.All {
		return true
	}
	if crit.Seen != nil && (m.flags&FlagSeen != 0) != *crit.Seen {
		return false
	}
	if crit.Deleted != nil && (m.flags&FlagDeleted != 0) != *crit.Deleted {
		return false
	}
	if crit.Answered != nil && (m.flags&FlagAnswered != 0) != *crit.Answered {
		return false
	}
	if crit.Flagged != nil && (m.flags&FlagFlagged != 0) != *crit.Flagged {
		return false
	}
	if crit.Draft != nil && (m.flags&FlagDraft != 0) != *crit.Draft {
		return false
	}
	if crit.Subject != "" && !strings.Contains(strings.ToLower(string(m.raw)), strings.ToLower(crit.Subject)) {
		return false
	}
	return true
}

func (idx *MemIndex) StoreFlags(ctx context.Context, account, name string, seqs []Range, byUID bool, op FlagOp, flags Flags) ([]MessageItem, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return nil, err
	}

	matches := matchSeqs(f, seqs, byUID)
	for _, im := range matches {
		switch op {
		case FlagOpReplace:
			im.msg.flags = flags
		case FlagOpAdd:
			im.msg.flags |= flags
		case FlagOpRemove:
			im.msg.flags &^= flags
		}
	}
	return toItems(matches, false), nil
}

func (idx *MemIndex) Append(ctx context.Context, account, name string, raw []byte, flags Flags, internalDate time.Time) (uint32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return 0, err
	}
	if internalDate.IsZero() {
		internalDate = time.Now()
	}
	uid := f.uidNext
	f.uidNext++
	f.messages = append(f.messages, &message{
		uid:          uid,
		flags:        flags,
		internalDate: internalDate,
		raw:          raw,
		recent:       true,
	})
	return uid, nil
}

func (idx *MemIndex) ListDeleted(ctx context.Context, account, name string) ([]MessageItem, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return nil, err
	}
	var out []MessageItem
	for i, m := range f.messages {
		if m.flags&FlagDeleted != 0 {
			out = append(out, MessageItem{Seq: i + 1, UID: m.uid, Flags: m.flags})
		}
	}
	return out, nil
}

// RemoveMail deletes messages by Seq, the same 1-based position
// ListDeleted/FetchSimple hand back, matching system_services_remove_mail
// taking the previously fetched MITEM list. All named messages
// are removed in one pass against the numbering before the call, so no
// message is renumbered between removals — the reference-implementation
// analogue of
// imap_cmd_parser_expunge's "subtract del_num from id as you go" EXPUNGE
// renumbering.
func (idx *MemIndex) RemoveMail(ctx context.Context, account, name string, seqs []int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	f, err := idx.folderFor(account, name)
	if err != nil {
		return err
	}

	doomed := map[int]bool{}
	for _, s := range seqs {
		doomed[s] = true
	}
	kept := f.messages[:0]
	for i, m := range f.messages {
		if !doomed[i+1] {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}
