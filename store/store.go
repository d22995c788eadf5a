// Package store specifies the mail-store back-end as an external
// collaborator: the property-bag/message storage system (the exmdb
// equivalent) that submit, imapcore, and bounce read from and write to.
// Only the interface this codebase needs is specified here — the on-disk
// format, property-tag catalog, and B-tree layout are out of scope.
package store

import "context"

// MID identifies one message within a logon's store.
type MID uint64

// FID identifies one folder within a logon's store.
type FID uint64

// Logon is an open handle to one user's store, the unit of authorization
// every Backend call is scoped to.
type Logon struct {
	Account string
	Dir     string
}

// RecipientType mirrors the MAPI recipient-type bitmask relevant to
// resend filtering.
type RecipientType uint32

const (
	RecipientTypeTo RecipientType = 1 << iota
	RecipientTypeCc
	RecipientTypeBcc
	RecipientTypeNeedResend
)

// BodyFormat selects which rendered body part(s) a message carries,
// mirroring PROP_TAG_INTERNETMAILOVERRIDEFORMAT's MESSAGE_FORMAT_* values.
type BodyFormat int

const (
	BodyFormatPlainAndHTML BodyFormat = iota
	BodyFormatHTMLOnly
	BodyFormatPlainOnly
)

// AddressType is the PR_ADDRESSTYPE of a recipient: how to interpret
// PR_EMAIL_ADDRESS/PR_ENTRYID when no PR_SMTP_ADDRESS is present.
type AddressType string

const (
	AddressTypeSMTP AddressType = "SMTP"
	AddressTypeEX   AddressType = "EX"
)

// Recipient is one row of a message's recipient table, the subset of
// properties the orchestrator's address-derivation algorithm needs.
type Recipient struct {
	Type         RecipientType
	SMTPAddress  string // PR_SMTP_ADDRESS, authoritative if non-empty
	AddressType  AddressType
	EmailAddress string // PR_EMAIL_ADDRESS, meaning depends on AddressType
	EntryID      []byte // PR_ENTRYID, last-resort resolution path
}

// MessageContent is the subset of a MAPI MESSAGE_CONTENT this codebase
// reads: the properties the submission algorithm inspects plus whatever
// rendered body text is already attached to it (rendering HTML/RTF from
// the raw MAPI body parts is out of scope — Non-goal).
type MessageContent struct {
	ParentFolderID FID
	InternetCPID   uint32 // 0 means "not present"
	MessageFlags   uint32
	Recipients     []Recipient

	Subject  string
	From, To string
	Plain    string
	HTML     string
	BodyFmt  BodyFormat

	// TargetEntryID, when present, is a store-opaque locator for the
	// post-submission move target (decoded via Backend.ResolveMoveTarget).
	TargetEntryID   []byte
	DeleteAfterSend bool
}

const MsgFlagResend = 0x00000080 // MSGFLAG_RESEND

// HasFlag reports whether MessageFlags has the given bit set.
func (m *MessageContent) HasFlag(bit uint32) bool {
	return m.MessageFlags&bit != 0
}

// Backend is the external-collaborator surface submit needs: enough of
// the store to load a message, resolve addresses, and carry out the
// post-submission disposition (move, delete, or clear-submit-and-file).
type Backend interface {
	// ReadMessage loads the full MessageContent for mid under logon, using
	// cpid as the code page to use if the message's own PR_INTERNET_CPID
	// is absent.
	ReadMessage(ctx context.Context, logon Logon, mid MID, cpid uint32) (*MessageContent, error)

	// ResolveEXAddress converts an Exchange-style legacyExchangeDN (the
	// "EX" address-type case) to an SMTP address, the essdn_to_username
	// equivalent.
	ResolveEXAddress(ctx context.Context, essdn string) (string, error)

	// ResolveEntryID converts a raw recipient entry-id to an SMTP
	// address; ResolveMoveTarget converts the post-submission target
	// entry-id to a (folder, message) pair.
	ResolveEntryID(ctx context.Context, logon Logon, entryID []byte) (string, error)
	ResolveMoveTarget(ctx context.Context, logon Logon, entryID []byte) (FID, MID, error)

	// ClearSubmitFlag unsets MSGFLAG_SUBMIT on mid, the step the
	// target-entryid and Sent Items branches perform before moving the
	// message (the delete-after-submit branch does not call it).
	ClearSubmitFlag(ctx context.Context, logon Logon, mid MID) error

	// MoveMessage relocates mid from its current folder into dst,
	// assigning it newMID, the target-entryid post-submission branch.
	MoveMessage(ctx context.Context, logon Logon, mid MID, dst FID, newMID MID) error

	// DeleteMessage permanently removes mid, the delete-after-submit
	// post-submission branch.
	DeleteMessage(ctx context.Context, logon Logon, mid MID) error

	// SentItemsFolder returns the logon's Sent Items folder id, the
	// default post-submission destination when neither a target entry-id
	// nor delete-after-submit applies.
	SentItemsFolder(ctx context.Context, logon Logon) (FID, error)
}
