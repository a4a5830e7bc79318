package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	m := &Message{
		ID:      "abc@example.com",
		Subject: "Quarterly report",
		From:    "Ana <ana@example.com>",
		To:      "team@example.com",
		Date:    time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Labels:  []string{"INBOX", "IMPORTANT"},
		Body:    "  The report is at https://docs.example.com/q2?id=7 now.  ",
	}

	want := "Labels: INBOX, IMPORTANT\n" +
		"Subject: Quarterly report\n" +
		"From: Ana <ana@example.com>\n" +
		"To: team@example.com\n" +
		"Date: Mon, 02 Jun 2025 09:30:00 +0000\n" +
		"\n" +
		"The report is at [URL: https://docs.example.com] now."
	assert.Equal(t, want, Compose(m))
}

func TestCompose_Minimal(t *testing.T) {
	assert.Equal(t, "just a body", Compose(&Message{Body: "just a body"}))
	assert.Equal(t, "Subject: hi\n\nbody", Compose(&Message{Subject: "hi", Body: "body"}))
	assert.Equal(t, "Labels: X\nbody", Compose(&Message{Labels: []string{"X"}, Body: "body"}))
}

func TestCompose_EmptyBody(t *testing.T) {
	assert.Empty(t, Compose(&Message{Subject: "no body", Body: " \n "}))
	assert.Empty(t, Compose(nil))
}

func TestCompose_Truncates(t *testing.T) {
	m := &Message{Body: "abcdefghij"}
	assert.Equal(t, "abcde...", Compose(m, WithMaxBodyLength(5)))
	assert.Equal(t, "abcdefghij", Compose(m, WithMaxBodyLength(0)))
	assert.Equal(t, "abcdefghij", Compose(m, WithMaxBodyLength(10)))
}

func TestSimplifyURLs(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"see http://example.com/a/b", "see [URL: http://example.com]"},
		{"HTTPS://Example.com:8443/x", "HTTPS://Example.com:8443/x"},
		{"https://a.example.org:8443/x?y=1#z", "[URL: https://a.example.org]"},
		{"two https://a.com/1 and http://b.com/2", "two [URL: https://a.com] and [URL: http://b.com]"},
		{"[https://a.com/x]", "[[URL: https://a.com]]"},
		{"no links here", "no links here"},
		{"ftp://files.example.com", "ftp://files.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SimplifyURLs(tt.in), tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héll...", Truncate("héllo wörld", 4))
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "short", Truncate("short", -1))
}

func TestMessage_Document(t *testing.T) {
	date := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("EST", -5*3600))
	m := &Message{ID: "id-1", Date: date, Body: "hello world"}

	doc := m.Document("owner")
	assert.Equal(t, "owner", doc.OwnerID)
	assert.Equal(t, "id-1", doc.DocumentID)
	assert.Equal(t, "hello world", doc.Text)
	assert.True(t, doc.Timestamp.Equal(date))
	assert.Equal(t, time.UTC, doc.Timestamp.Location())

	future := &Message{ID: "f", Date: time.Now().Add(48 * time.Hour), Body: "x"}
	assert.False(t, future.Document("owner").Timestamp.After(time.Now()))

	undated := &Message{ID: "u", Body: "x"}
	assert.True(t, undated.Document("owner").Timestamp.IsZero())
}

func TestNormalizeText(t *testing.T) {
	in := "line  one\r\n\r\n\r\n\tline two \n\n\n\nthree"
	assert.Equal(t, "line one\n\nline two\n\nthree", normalizeText(in))
	require.Empty(t, normalizeText(" \n \n"))
}
