package message

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

var (
	// ErrMalformed is returned when a message cannot be parsed.
	ErrMalformed = errors.New("malformed message")

	// ErrUnsupported is returned by ReadFile for files that are neither
	// messages nor text.
	ErrUnsupported = errors.New("unsupported file type")
)

// labelsHeader carries Gmail labels in exported mail.
const labelsHeader = "X-Gmail-Labels"

var headerDecoder = &mime.WordDecoder{CharsetReader: charset.NewReaderLabel}

// Parse reads an RFC 5322 message.
func Parse(r io.Reader) (*Message, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	h := msg.Header

	m := &Message{
		ID:      strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>"),
		Subject: decodeHeader(h.Get("Subject")),
		From:    decodeHeader(h.Get("From")),
		To:      decodeHeader(h.Get("To")),
		Cc:      decodeHeader(h.Get("Cc")),
	}
	if date, err := h.Date(); err == nil {
		m.Date = date
	}
	for _, label := range strings.Split(decodeHeader(h.Get(labelsHeader)), ",") {
		if label = strings.TrimSpace(label); label != "" {
			m.Labels = append(m.Labels, label)
		}
	}

	body, _, err := extractText(h.Get("Content-Type"), h.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	m.Body = body
	return m, nil
}

// ReadFile reads a message from path. Files named *.eml or detected as
// message/rfc822 are parsed as messages. Other text files become a message
// whose body is the file content and whose ID is the file name without
// extension.
func ReadFile(path string) (*Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	mt := mimetype.Detect(data)
	if strings.EqualFold(filepath.Ext(path), ".eml") || mt.Is("message/rfc822") {
		m, err := Parse(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if m.ID == "" {
			m.ID = fileID(path)
		}
		return m, nil
	}

	if !strings.HasPrefix(mt.String(), "text/") {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupported, path, mt.String())
	}
	text, err := decodeCharset(data, charsetParam(mt.String()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if mt.Is("text/html") {
		if text, err = htmlToText(strings.NewReader(text)); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return &Message{ID: fileID(path), Body: normalizeText(text)}, nil
}

func fileID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func decodeHeader(v string) string {
	decoded, err := headerDecoder.DecodeHeader(v)
	if err != nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(decoded)
}

// extractText returns the readable text of a MIME entity and whether it
// came from a text/plain part.
func extractText(contentType, encoding string, body io.Reader) (string, bool, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if contentType == "" || err != nil {
		mediaType, params = "text/plain", nil
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		return extractMultipart(params["boundary"], body)
	case mediaType == "text/plain", mediaType == "text/html":
		data, err := io.ReadAll(transferDecoder(encoding, body))
		if err != nil {
			return "", false, fmt.Errorf("decoding %s body: %w", encoding, err)
		}
		text, err := decodeCharset(data, params["charset"])
		if err != nil {
			return "", false, err
		}
		if mediaType == "text/html" {
			text, err = htmlToText(strings.NewReader(text))
			if err != nil {
				return "", false, err
			}
			return normalizeText(text), false, nil
		}
		return normalizeText(text), true, nil
	}
	return "", false, nil
}

// extractMultipart prefers the first text/plain part and otherwise returns
// the first part with any text. Attachments are ignored.
func extractMultipart(boundary string, body io.Reader) (string, bool, error) {
	if boundary == "" {
		return "", false, errors.New("multipart body without boundary")
	}
	mr := multipart.NewReader(body, boundary)
	var fallback string
	for {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", false, err
		}
		if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" {
			continue
		}
		text, plain, err := extractText(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
		if err != nil {
			return "", false, err
		}
		if text == "" {
			continue
		}
		if plain {
			return text, true, nil
		}
		if fallback == "" {
			fallback = text
		}
	}
	return fallback, false, nil
}

func transferDecoder(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	}
	return r
}

func decodeCharset(data []byte, label string) (string, error) {
	if utf8.Valid(data) && (label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "us-ascii")) {
		return string(data), nil
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		enc, name, _ = charset.DetermineEncoding(data, "text/plain")
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("transcode from %s: %w", name, err)
	}
	return string(decoded), nil
}

func charsetParam(contentType string) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// normalizeText unifies line endings, collapses runs of spaces and keeps
// at most one blank line between paragraphs.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
