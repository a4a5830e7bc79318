package message

import (
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/mailrag/core"
)

// DefaultMaxBodyLength is the body length, in characters, kept by Compose
// when WithMaxBodyLength is not given. Zero means no limit.
const DefaultMaxBodyLength = 0

// Message is a parsed email.
type Message struct {
	// ID is the Message-ID without angle brackets.
	ID      string
	Subject string
	From    string
	To      string
	Cc      string
	Date    time.Time
	Labels  []string
	Body    string
}

type composeConfig struct {
	maxBodyLength int
}

// ComposeOption configures Compose.
type ComposeOption func(*composeConfig)

// WithMaxBodyLength truncates the body to n characters followed by "...".
// Zero or less keeps the whole body.
func WithMaxBodyLength(n int) ComposeOption {
	return func(c *composeConfig) {
		c.maxBodyLength = n
	}
}

var headerOrder = []string{"Subject", "From", "To", "Cc", "Date"}

// Compose renders m as document text. A message with an empty body
// composes to the empty string.
func Compose(m *Message, opts ...ComposeOption) string {
	cfg := composeConfig{maxBodyLength: DefaultMaxBodyLength}
	for _, opt := range opts {
		opt(&cfg)
	}
	if m == nil {
		return ""
	}
	body := strings.TrimSpace(m.Body)
	if body == "" {
		return ""
	}
	body = Truncate(SimplifyURLs(body), cfg.maxBodyLength)

	var sb strings.Builder
	if len(m.Labels) > 0 {
		sb.WriteString("Labels: ")
		sb.WriteString(strings.Join(m.Labels, ", "))
		sb.WriteString("\n")
	}

	var headers []string
	for _, name := range headerOrder {
		if v := m.header(name); v != "" {
			headers = append(headers, name+": "+v)
		}
	}
	if len(headers) > 0 {
		sb.WriteString(strings.Join(headers, "\n"))
		sb.WriteString("\n\n")
	}
	sb.WriteString(body)
	return strings.TrimSpace(sb.String())
}

func (m *Message) header(name string) string {
	switch name {
	case "Subject":
		return m.Subject
	case "From":
		return m.From
	case "To":
		return m.To
	case "Cc":
		return m.Cc
	case "Date":
		if m.Date.IsZero() {
			return ""
		}
		return m.Date.Format(time.RFC1123Z)
	}
	return ""
}

// Document builds the ingestion input for m. Dates in the future are
// clamped to now.
func (m *Message) Document(ownerID string, opts ...ComposeOption) core.Document {
	ts := m.Date
	if now := time.Now(); ts.After(now) {
		ts = now
	}
	if !ts.IsZero() {
		ts = ts.UTC()
	}
	return core.Document{
		OwnerID:    ownerID,
		DocumentID: m.ID,
		Text:       Compose(m, opts...),
		Timestamp:  ts,
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s\[\]]+`)

// SimplifyURLs replaces every http(s) URL in text with [URL: scheme://host].
// Strings that do not parse as URLs are left alone.
func SimplifyURLs(text string) string {
	return urlPattern.ReplaceAllStringFunc(text, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return raw
		}
		return "[URL: " + strings.ToLower(u.Scheme) + "://" + u.Hostname() + "]"
	})
}

// Truncate shortens text to n characters plus "...". n <= 0 disables it.
func Truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
