package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRFC5322 = "From: Alice <alice@example.com>\r\n" +
	"To: Bob <bob@example.com>\r\n" +
	"Subject: Hello there\r\n" +
	"Date: Mon, 02 Aug 2026 10:00:00 +0000\r\n" +
	"Content-Type: multipart/mixed; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Hi Bob, long time no see.\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; name=notes.txt\r\n" +
	"Content-Disposition: attachment; filename=notes.txt\r\n" +
	"\r\n" +
	"file contents\r\n" +
	"--XYZ--\r\n"

func TestParseIMAPBasicFields(t *testing.T) {
	msg, attachments, err := ParseIMAP(IMAPInput{
		AccountID: "acct-1",
		Folder:    "INBOX",
		UID:       42,
		MessageID: "<abc@example.com>",
		Flags:     []string{"\\Seen"},
		Raw:       []byte(sampleRFC5322),
	})
	require.NoError(t, err)

	assert.Equal(t, "acct-1", msg.AccountID)
	assert.Equal(t, 42, msg.UID)
	assert.Equal(t, "INBOX", msg.Folder)
	assert.Equal(t, "Hello there", msg.Subject)
	assert.True(t, msg.IsRead)
	assert.Contains(t, msg.From, "alice@example.com")
	assert.Contains(t, msg.Body, "Hi Bob")
	assert.Len(t, attachments, 1)
	assert.Equal(t, "notes.txt", attachments[0].Filename)
}

func TestParseIMAPUnreadFlag(t *testing.T) {
	msg, _, err := ParseIMAP(IMAPInput{
		AccountID: "acct-1",
		Folder:    "INBOX",
		UID:       1,
		Raw:       []byte(sampleRFC5322),
	})
	require.NoError(t, err)
	assert.False(t, msg.IsRead)
}

func TestParseIMAPDefaultsSubject(t *testing.T) {
	raw := "From: a@example.com\r\nTo: b@example.com\r\n\r\nbody only\r\n"
	msg, _, err := ParseIMAP(IMAPInput{AccountID: "a", Folder: "INBOX", UID: 1, Raw: []byte(raw)})
	require.NoError(t, err)
	assert.Equal(t, noSubject, msg.Subject)
}

func TestParseIMAPMalformedReturnsErrParse(t *testing.T) {
	_, _, err := ParseIMAP(IMAPInput{AccountID: "a", Folder: "INBOX", UID: 1, Raw: []byte("not a valid mime message at all \x00\x01")})
	// go-message is lenient about bare bodies; this assertion only
	// requires that a hard failure, if any, surfaces as ErrParse.
	if err != nil {
		assert.ErrorContains(t, err, "parse error")
	}
}

const sampleGraphJSON = `{
	"id": "graph-id-1",
	"subject": "Quarterly update",
	"bodyPreview": "preview text",
	"receivedDateTime": "2026-08-01T12:30:00Z",
	"isRead": false,
	"internetMessageId": "<graph@example.com>",
	"from": {"emailAddress": {"name": "Carol", "address": "carol@example.com"}},
	"toRecipients": [{"emailAddress": {"name": "Dave", "address": "dave@example.com"}}],
	"body": {"contentType": "html", "content": "<p>hi</p>"}
}`

func TestParseGraphBasicFields(t *testing.T) {
	msg, err := ParseGraph(GraphInput{
		AccountID:    "acct-2",
		Folder:       "INBOX",
		SyntheticUID: 7,
		Raw:          []byte(sampleGraphJSON),
	})
	require.NoError(t, err)

	assert.Equal(t, "acct-2", msg.AccountID)
	assert.Equal(t, 7, msg.UID)
	assert.Equal(t, "Quarterly update", msg.Subject)
	assert.Contains(t, msg.From, "carol@example.com")
	assert.Equal(t, "<p>hi</p>", msg.HTMLBody)
	assert.Equal(t, "preview text", msg.Body)
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestParseGraphDefaultsSubject(t *testing.T) {
	msg, err := ParseGraph(GraphInput{
		AccountID: "acct-2",
		Folder:    "INBOX",
		Raw:       []byte(`{"id":"x","body":{"contentType":"text","content":"hi"}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, noSubject, msg.Subject)
}

func TestParseGraphMalformedJSON(t *testing.T) {
	_, err := ParseGraph(GraphInput{Raw: []byte("not json")})
	assert.ErrorContains(t, err, "parse error")
}
