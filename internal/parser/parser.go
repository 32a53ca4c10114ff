// Package parser canonicalizes raw provider payloads (RFC 5322 bytes
// from IMAP, JSON from Microsoft Graph) into domain.Message (§4.4).
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/mailerr"
)

const noSubject = "(No Subject)"

var (
	tagPattern        = regexp.MustCompile(`(?is)<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// stripHTML degrades an HTML body to plain text well enough for search
// and preview, not for faithful rendering: tags are dropped outright
// and runs of whitespace collapsed.
func stripHTML(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// IMAPInput carries everything ParseIMAP needs beyond the raw bytes:
// the fields the fetch already learned from the envelope/flags, since
// go-imap doesn't reliably parse a From display name into a clean
// address the way this parser wants it.
type IMAPInput struct {
	AccountID string
	Folder    string
	UID       int
	MessageID string
	Flags     []string
	Raw       []byte
}

// ParseIMAP parses one RFC 5322 message into a canonical domain.Message.
// A malformed body degrades to a message with an empty text body rather
// than failing outright, matching the parser's per-message isolation
// contract in §7: only truly unreadable input returns ErrParse.
func ParseIMAP(in IMAPInput) (domain.Message, []*domain.Attachment, error) {
	msg := domain.Message{
		AccountID:  in.AccountID,
		UID:        in.UID,
		Folder:     in.Folder,
		MessageID:  in.MessageID,
		Subject:    noSubject,
		IsRead:     hasFlag(in.Flags, "\\Seen"),
		FetchedAt:  now(),
		ReceivedAt: now(),
	}

	reader, err := mail.CreateReader(bytes.NewReader(in.Raw))
	if err != nil {
		return domain.Message{}, nil, fmt.Errorf("%w: %v", mailerr.ErrParse, err)
	}
	defer reader.Close()

	if subject, err := reader.Header.Subject(); err == nil && strings.TrimSpace(subject) != "" {
		msg.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date
	}
	if from, err := reader.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = renderAddress(from[0])
	}
	if to, err := reader.Header.AddressList("To"); err == nil && len(to) > 0 {
		addrs := make([]string, 0, len(to))
		for _, a := range to {
			addrs = append(addrs, renderAddress(a))
		}
		msg.To = domain.EncodeToList(addrs)
	}

	var attachments []*domain.Attachment
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				msg.Body = appendBody(msg.Body, string(body))
			case strings.HasPrefix(contentType, "text/html"):
				msg.HTMLBody = appendBody(msg.HTMLBody, string(body))
			}
		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if strings.TrimSpace(filename) == "" {
				filename = "attachment"
			}
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			attachments = append(attachments, &domain.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        int64(len(body)),
				Bytes:       body,
			})
		}
	}

	// An HTML-only message still needs a plain-text body for search and
	// preview, and a plaintext-only message still needs an HTML body for
	// the reader view; each direction falls back off the other rather
	// than leaving the field empty.
	if msg.Body == "" && msg.HTMLBody != "" {
		msg.Body = stripHTML(msg.HTMLBody)
	}
	if msg.HTMLBody == "" && msg.Body != "" {
		msg.HTMLBody = "<div>" + msg.Body + "</div>"
	}

	return msg, attachments, nil
}

func appendBody(existing, part string) string {
	if existing == "" {
		return part
	}
	return existing + "\n" + part
}

func renderAddress(a *mail.Address) string {
	if a.Name != "" {
		return a.Name + " <" + a.Address + ">"
	}
	return a.Address
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// graphMessage mirrors the subset of the Microsoft Graph message
// resource this parser consumes. Field names follow Graph's JSON
// exactly so json.Unmarshal needs no custom tags beyond casing.
type graphMessage struct {
	ID                string           `json:"id"`
	Subject           string           `json:"subject"`
	BodyPreview       string           `json:"bodyPreview"`
	ReceivedDateTime  string           `json:"receivedDateTime"`
	IsRead            bool             `json:"isRead"`
	InternetMessageID string           `json:"internetMessageId"`
	From              *graphRecipient  `json:"from"`
	ToRecipients      []graphRecipient `json:"toRecipients"`
	Body              graphBody        `json:"body"`
	HasAttachments    bool             `json:"hasAttachments"`
}

type graphRecipient struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"` // "text" or "html"
	Content     string `json:"content"`
}

// GraphInput carries the account/folder scope ParseGraph needs
// alongside the raw JSON, since Graph's message resource is
// self-contained but doesn't know which local account it belongs to.
type GraphInput struct {
	AccountID    string
	Folder       string
	SyntheticUID int
	Raw          []byte
}

// ParseGraph parses one Graph message JSON resource into a canonical
// domain.Message. Graph has no per-folder UID, so the caller assigns a
// SyntheticUID (§9 design note) derived from a monotonic counter.
func ParseGraph(in GraphInput) (domain.Message, error) {
	var g graphMessage
	if err := json.Unmarshal(in.Raw, &g); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", mailerr.ErrParse, err)
	}

	msg := domain.Message{
		AccountID: in.AccountID,
		UID:       in.SyntheticUID,
		Folder:    in.Folder,
		MessageID: g.InternetMessageID,
		Subject:   g.Subject,
		IsRead:    g.IsRead,
		FetchedAt: now(),
	}
	if msg.Subject == "" {
		msg.Subject = noSubject
	}

	if g.From != nil {
		msg.From = renderGraphRecipient(*g.From)
	}
	if len(g.ToRecipients) > 0 {
		addrs := make([]string, 0, len(g.ToRecipients))
		for _, r := range g.ToRecipients {
			addrs = append(addrs, renderGraphRecipient(r))
		}
		msg.To = domain.EncodeToList(addrs)
	}

	switch g.Body.ContentType {
	case "html":
		msg.HTMLBody = g.Body.Content
	default:
		msg.Body = g.Body.Content
	}
	if msg.Body == "" && msg.HTMLBody != "" {
		msg.Body = g.BodyPreview
	}

	if t, err := time.Parse(time.RFC3339, g.ReceivedDateTime); err == nil {
		msg.ReceivedAt = t
	} else {
		msg.ReceivedAt = now()
	}

	return msg, nil
}

func renderGraphRecipient(r graphRecipient) string {
	if r.EmailAddress.Name != "" {
		return r.EmailAddress.Name + " <" + r.EmailAddress.Address + ">"
	}
	return r.EmailAddress.Address
}

// now is a seam for tests that need deterministic FetchedAt/ReceivedAt
// fallback values; production code always uses wall-clock time.
var now = time.Now
