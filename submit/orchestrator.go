// Package submit implements the submission orchestrator: the MAPI-side
// counterpart to smtpclient, driving the 9-step send-and-post-process
// algorithm against the store.Backend external-collaborator surface.
// Grounded on exchange_emsmdb/common_util.cpp's cu_send_message.
package submit

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/postalcore/postal/framework/address"
	"github.com/postalcore/postal/framework/dns"
	"github.com/postalcore/postal/framework/future"
	"github.com/postalcore/postal/framework/log"
	"github.com/postalcore/postal/internal/rfc5322"
	"github.com/postalcore/postal/smtpclient"
	"github.com/postalcore/postal/store"
)

// Orchestrator ties together a store.Backend, an RFC 5322 exporter, and an
// smtpclient.Client to implement SendMessage.
type Orchestrator struct {
	Backend store.Backend
	Relay   string // host:port of the outbound relay

	Hostname string // EHLO hostname for outbound submissions
	Log      log.Logger

	// Resolver checks each recipient domain has a deliverable MX (or
	// fallback A/AAAA) record before handing the message to smtpclient,
	// the way target/remote refuses to dial a domain with neither. Nil
	// disables the check (useful when Relay is a fixed smarthost that
	// does its own routing).
	Resolver dns.Resolver

	// DNSSECResolver, when set, additionally confirms the MX answer
	// checkDomain relied on was DNSSEC-authenticated (miekg/dns's AD
	// flag). An unauthenticated answer is only logged, never rejected,
	// the same reduced-trust-not-refusal treatment target/remote's
	// security.go gives a missing DNSSEC signature. Nil skips the check.
	DNSSECResolver *dns.ExtResolver

	// domainChecks dedupes concurrent checkDomain lookups for the same
	// domain across SendMessage calls sharing this Orchestrator, the way
	// target/remote's security.go shares one in-flight MTA-STS/DANE
	// policy.Future per domain instead of every concurrent delivery
	// re-querying it.
	domainChecks sync.Map // domain string -> *future.Future
}

// SendMessage implements spec.md §4.3's 9-step algorithm: load the stored
// message, resolve recipients, export to RFC 5322, submit over SMTP, and
// carry out exactly one post-processing branch. A failure at any step
// aborts without any partial post-processing.
func (o *Orchestrator) SendMessage(ctx context.Context, logon store.Logon, mid store.MID, submitFlag bool) (bool, error) {
	msg, err := o.loadMessage(ctx, logon, mid)
	if err != nil {
		o.Log.Error("submit: load failed", err, "mid", mid)
		return false, err
	}

	rcpts, err := o.resolveRecipients(ctx, logon, mid, msg)
	if err != nil {
		o.Log.Error("submit: recipient resolution failed", err, "mid", mid)
		return false, err
	}

	if err := o.checkRecipientDomains(ctx, rcpts); err != nil {
		o.Log.Error("submit: recipient domain has no deliverable DNS records", err, "mid", mid)
		return false, err
	}

	rendered, err := o.export(msg, rcpts)
	if err != nil {
		o.Log.Error("submit: RFC 5322 export failed", err, "mid", mid)
		return false, err
	}

	if err := o.submit(ctx, msg, rcpts, rendered); err != nil {
		o.Log.Error("submit: SMTP submission failed", err, "mid", mid)
		return false, err
	}

	if err := o.postProcess(ctx, logon, mid, msg); err != nil {
		o.Log.Error("submit: post-processing failed", err, "mid", mid)
		return false, err
	}

	return true, nil
}

// loadMessage is steps 1–3: find the parent folder (implicitly loaded with
// the message), read the full MESSAGE_CONTENT, and ensure PR_INTERNET_CPID
// is present — Backend.ReadMessage is handed the fallback cpid so the
// "stamp current session's CPID if absent" step happens store-side, where
// the property bag actually lives.
func (o *Orchestrator) loadMessage(ctx context.Context, logon store.Logon, mid store.MID) (*store.MessageContent, error) {
	const sessionCPID = 1252 // default code page when the session carries none
	msg, err := o.Backend.ReadMessage(ctx, logon, mid, sessionCPID)
	if err != nil {
		return nil, fmt.Errorf("submit: reading message: %w", err)
	}
	if msg.ParentFolderID == 0 {
		return nil, fmt.Errorf("submit: message %d has no parent folder", mid)
	}
	return msg, nil
}

// resolveRecipients is steps 4–5: filter by MSGFLAG_RESEND if set, then
// derive each selected recipient's SMTP address in the documented order
// (PR_SMTP_ADDRESS, then by address-type, then entry-id resolution).
func (o *Orchestrator) resolveRecipients(ctx context.Context, logon store.Logon, mid store.MID, msg *store.MessageContent) ([]string, error) {
	resend := msg.HasFlag(store.MsgFlagResend)

	var addrs []string
	for _, rcpt := range msg.Recipients {
		if resend && rcpt.Type&store.RecipientTypeNeedResend == 0 {
			continue
		}

		addr, err := o.resolveOneRecipient(ctx, logon, rcpt)
		if err != nil {
			return nil, fmt.Errorf("submit: mid %d: %w", mid, err)
		}
		addrs = append(addrs, addr)
	}

	if len(addrs) == 0 {
		return nil, fmt.Errorf("submit: mid %d: no recipients after resolution", mid)
	}
	return addrs, nil
}

func (o *Orchestrator) resolveOneRecipient(ctx context.Context, logon store.Logon, rcpt store.Recipient) (string, error) {
	if rcpt.SMTPAddress != "" {
		return rcpt.SMTPAddress, nil
	}

	switch rcpt.AddressType {
	case store.AddressTypeSMTP:
		if rcpt.EmailAddress == "" {
			return "", fmt.Errorf("recipient of SMTP address type has no PR_EMAIL_ADDRESS")
		}
		return rcpt.EmailAddress, nil
	case store.AddressTypeEX:
		if rcpt.EmailAddress == "" {
			return o.resolveByEntryID(ctx, logon, rcpt)
		}
		addr, err := o.Backend.ResolveEXAddress(ctx, rcpt.EmailAddress)
		if err != nil {
			return o.resolveByEntryID(ctx, logon, rcpt)
		}
		return addr, nil
	default:
		return o.resolveByEntryID(ctx, logon, rcpt)
	}
}

// checkRecipientDomains rejects the submission early if any recipient's
// domain has neither an MX nor a fallback A/AAAA record, mirroring
// target/remote's "no usable records" rejection instead of letting the
// relay discover the dead-end itself mid-conversation. No-op if Resolver
// is unset.
func (o *Orchestrator) checkRecipientDomains(ctx context.Context, rcpts []string) error {
	if o.Resolver == nil {
		return nil
	}
	seen := make(map[string]bool)
	for _, rcpt := range rcpts {
		domain, err := domainOf(rcpt)
		if err != nil {
			return fmt.Errorf("submit: recipient %q: %w", rcpt, err)
		}
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true
		if err := o.checkDomain(ctx, domain); err != nil {
			return err
		}
	}
	return nil
}

// checkDomain looks up domain's deliverability, sharing the result with any
// other goroutine concurrently checking the same domain via a cached
// future.Future instead of issuing the same pair of DNS queries twice.
func (o *Orchestrator) checkDomain(ctx context.Context, domain string) error {
	actual, loaded := o.domainChecks.LoadOrStore(domain, future.New())
	fut := actual.(*future.Future)
	if loaded {
		_, err := fut.GetContext(ctx)
		return err
	}

	err := o.lookupDomain(ctx, domain)
	if err == nil {
		o.checkDNSSEC(ctx, domain)
	}
	fut.Set(struct{}{}, err)
	o.domainChecks.Delete(domain)
	return err
}

// checkDNSSEC warns (never fails SendMessage) when domain's MX answer was
// not DNSSEC-authenticated. Best-effort: a lookup error here is swallowed,
// since DNSSECResolver is a hardening option, not a correctness dependency.
func (o *Orchestrator) checkDNSSEC(ctx context.Context, domain string) {
	if o.DNSSECResolver == nil {
		return
	}
	ad, _, err := o.DNSSECResolver.AuthLookupMX(ctx, domain)
	if err != nil {
		return
	}
	if !ad {
		o.Log.Msg("submit: recipient domain MX answer is not DNSSEC-authenticated", "domain", domain)
	}
}

func (o *Orchestrator) lookupDomain(ctx context.Context, domain string) error {
	mxs, err := o.Resolver.LookupMX(ctx, domain)
	if err == nil && len(mxs) > 0 {
		return nil
	}
	// Fall back to A/AAAA the way an implicit MX record is defined by
	// RFC 5321 §5.1 when no MX RRset exists.
	if _, aerr := o.Resolver.LookupHost(ctx, domain); aerr == nil {
		return nil
	}
	return fmt.Errorf("submit: domain %q has no MX or A/AAAA records", domain)
}

// domainOf extracts addr's domain using address.Split's RFC 5321
// forward-path parsing (quote- and postmaster-aware) rather than a bare
// strings.Cut, so a quoted local-part containing "@" doesn't get split in
// the wrong place.
func domainOf(addr string) (string, error) {
	_, domain, err := address.Split(addr)
	if err != nil {
		return "", err
	}
	return domain, nil
}

func (o *Orchestrator) resolveByEntryID(ctx context.Context, logon store.Logon, rcpt store.Recipient) (string, error) {
	if rcpt.EntryID == nil {
		return "", fmt.Errorf("cannot resolve recipient address: no entry-id")
	}
	addr, err := o.Backend.ResolveEntryID(ctx, logon, rcpt.EntryID)
	if err != nil {
		return "", fmt.Errorf("resolving recipient entry-id: %w", err)
	}
	return addr, nil
}

// export is steps 6–7: pick a body mode and render to RFC 5322, never as
// TNEF (TNEF rendering is a Non-goal; this exporter only ever produces
// plain/HTML MIME parts).
func (o *Orchestrator) export(msg *store.MessageContent, rcpts []string) ([]byte, error) {
	mode := rfc5322.PlainAndHTML
	switch msg.BodyFmt {
	case store.BodyFormatHTMLOnly:
		mode = rfc5322.HTMLOnly
	case store.BodyFormatPlainOnly:
		mode = rfc5322.PlainOnly
	}

	to := make([]rfc5322.Address, len(rcpts))
	for i, r := range rcpts {
		to[i] = rfc5322.Address{Addr: r}
	}

	rmsg := rfc5322.Message{
		From:    rfc5322.Address{Addr: msg.From},
		To:      to,
		Subject: msg.Subject,
		Mode:    mode,
		Plain:   msg.Plain,
		HTML:    msg.HTML,
	}

	var buf bytes.Buffer
	if err := rfc5322.Build(rmsg, &buf); err != nil {
		return nil, fmt.Errorf("exporting to RFC 5322: %w", err)
	}
	return buf.Bytes(), nil
}

// submit is step 8: call the SMTP submission client. A failure here aborts
// the whole operation; no post-processing is attempted.
func (o *Orchestrator) submit(ctx context.Context, msg *store.MessageContent, rcpts []string, rendered []byte) error {
	client := smtpclient.New(o.Hostname, o.Log)
	ok, results, err := client.SendMail(ctx, o.Relay, msg.From, rcpts, bytes.NewReader(rendered))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("submit: message rejected by relay")
	}
	for _, r := range results {
		if r.Err != nil {
			o.Log.Msg("submit: recipient rejected", "rcpt", r.Rcpt, "error", r.Err)
		}
	}
	return nil
}

// postProcess is step 9: exactly one of the three mutually exclusive
// branches runs, in the order the original algorithm checks them —
// target-entryid move first, then delete-after-submit, then the Sent
// Items fallback.
func (o *Orchestrator) postProcess(ctx context.Context, logon store.Logon, mid store.MID, msg *store.MessageContent) error {
	if msg.TargetEntryID != nil {
		if err := o.Backend.ClearSubmitFlag(ctx, logon, mid); err != nil {
			return fmt.Errorf("clearing submit flag: %w", err)
		}
		dst, newMID, err := o.Backend.ResolveMoveTarget(ctx, logon, msg.TargetEntryID)
		if err != nil {
			return fmt.Errorf("resolving move target: %w", err)
		}
		if err := o.Backend.MoveMessage(ctx, logon, mid, dst, newMID); err != nil {
			return fmt.Errorf("moving to target folder: %w", err)
		}
		return nil
	}

	if msg.DeleteAfterSend {
		if err := o.Backend.DeleteMessage(ctx, logon, mid); err != nil {
			return fmt.Errorf("deleting after submit: %w", err)
		}
		return nil
	}

	if err := o.Backend.ClearSubmitFlag(ctx, logon, mid); err != nil {
		return fmt.Errorf("clearing submit flag: %w", err)
	}
	sent, err := o.Backend.SentItemsFolder(ctx, logon)
	if err != nil {
		return fmt.Errorf("resolving Sent Items folder: %w", err)
	}
	if err := o.Backend.MoveMessage(ctx, logon, mid, sent, mid); err != nil {
		return fmt.Errorf("moving to Sent Items: %w", err)
	}
	return nil
}
