// Package midb defines the external-collaborator surface GLOSSARY names
// "midb" — the out-of-process IMAP index daemon owning per-folder message
// metadata — plus an in-process reference implementation of it. imapcore
// depends only on the Index interface; grommunio's real midb protocol
// (a line-oriented socket protocol of its own, distinct from the event
// service) is out of scope per spec.md's Non-goals on on-disk formats, so
// Index is modeled directly on the system_services_* calls
// imap_cmd_parser.cpp makes (summary_folder, fetch_simple, fetch_detail,
// list_deleted, remove_mail, search) rather than on grommunio's wire
// format.
package midb

import (
	"context"
	"time"
)

// Flags mirrors the five IMAP flags imap_cmd_parser.cpp tracks
// (FLAG_ANSWERED/FLAG_FLAGGED/FLAG_DELETED/FLAG_SEEN/FLAG_DRAFT); \Recent
// is derived from arrival order, not stored per message.
type Flags uint8

const (
	FlagAnswered Flags = 1 << iota
	FlagFlagged
	FlagDeleted
	FlagSeen
	FlagDraft
)

// Summary is system_services_summary_folder's result tuple.
type Summary struct {
	Exists      int
	Recent      int
	UIDValidity uint32
	UIDNext     uint32
	FirstUnseen int // -1 if every message is \Seen
}

// MessageItem is one MITEM: a folder-relative sequence number, its UID,
// flags, and (for fetch_detail) the fields a BODY/RFC822 fetch needs.
type MessageItem struct {
	Seq   int // 1-based position within the folder, MITEM.id
	UID   uint32
	Flags Flags

	// InternalDate and Raw are populated by FetchDetail, not FetchSimple.
	// Size is populated by FetchDetail; MemIndex also sets it in
	// FetchSimple results.
	InternalDate time.Time
	Size         int
	Raw          []byte // full RFC 5322 message, for BODY/RFC822 fetches
}

// Range is one SEQUENCE_NODE: an inclusive [Min,Max] span, or Max == -1
// meaning "through the end" (a trailing "*" or "N:*").
type Range struct {
	Min, Max int
}

// Index is the per-mailbox metadata surface imapcore dispatches against.
// Every method is scoped to one (account, folder) pair, matching
// system_services_*'s (maildir, folder) parameter pair.
type Index interface {
	// Summary returns SELECT/EXAMINE's EXISTS/RECENT/UIDVALIDITY/UIDNEXT
	// and the first unseen sequence number (-1 if none).
	Summary(ctx context.Context, account, folder string) (Summary, error)

	// FetchSimple returns Seq/UID/Flags only, for STORE and for FETCH
	// requests naming only FLAGS/UID (system_services_fetch_simple).
	FetchSimple(ctx context.Context, account, folder string, seqs []Range, byUID bool) ([]MessageItem, error)

	// FetchDetail additionally loads InternalDate/Size/Raw
	// (system_services_fetch_detail).
	FetchDetail(ctx context.Context, account, folder string, seqs []Range, byUID bool) ([]MessageItem, error)

	// Search runs criteria against folder and returns matching
	// sequence numbers (or UIDs, if byUID), system_services_search.
	Search(ctx context.Context, account, folder string, criteria SearchCriteria, byUID bool) ([]uint32, error)

	// StoreFlags applies op (replace/add/remove) to every message named
	// by seqs, returning their post-update items for the STORE
	// response. Rejects silently-ignored sequence entries the same way
	// imap_cmd_parser_store does: unknown sequence numbers are skipped,
	// not errors.
	StoreFlags(ctx context.Context, account, folder string, seqs []Range, byUID bool, op FlagOp, flags Flags) ([]MessageItem, error)

	// Append adds a new message with the given flags and internal date
	// (zero means "now"), returning its assigned UID.
	Append(ctx context.Context, account, folder string, msg []byte, flags Flags, internalDate time.Time) (uid uint32, err error)

	// ListDeleted returns every message flagged \Deleted, for EXPUNGE.
	ListDeleted(ctx context.Context, account, folder string) ([]MessageItem, error)

	// RemoveMail deletes the named messages (by folder-relative Seq),
	// system_services_remove_mail.
	RemoveMail(ctx context.Context, account, folder string, seqs []int) error

	// EnsureFolder creates folder if it doesn't exist yet, the
	// reference backend's stand-in for a real midb's CREATE/mkdir.
	EnsureFolder(ctx context.Context, account, folder string) error

	// FolderExists reports whether folder has been created for account.
	FolderExists(ctx context.Context, account, folder string) (bool, error)
}

// FlagOp is STORE's three update modes: "FLAGS" replaces the set,
// "+FLAGS" adds, "-FLAGS" removes.
type FlagOp int

const (
	FlagOpReplace FlagOp = iota
	FlagOpAdd
	FlagOpRemove
)

// SearchCriteria is a deliberately small subset of RFC 3501's SEARCH
// grammar: imap_cmd_parser_search delegates the entire key list verbatim
// to system_services_search's own parser, which SPEC_FULL's Non-goals
// (MAPI property catalog, on-disk index format) place out of scope here;
// ALL/SEEN/UNSEEN/flag keys and a single HEADER-equivalent substring
// match cover the cases the test suite exercises.
type SearchCriteria struct {
	All      bool
	Seen     *bool
	Deleted  *bool
	Answered *bool
	Flagged  *bool
	Draft    *bool
	// Subject, when non-empty, matches messages whose raw bytes (header
	// and body) contain it case-insensitively (a stand-in for SEARCH's
	// SUBJECT/TEXT keys).
	Subject string
}
