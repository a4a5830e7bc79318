// Package message turns email messages into document text for ingestion.
//
// Compose renders a Message as a short header block followed by the body,
// with URLs reduced to their scheme and host:
//
//	Labels: INBOX, IMPORTANT
//	Subject: Quarterly report
//	From: Ana <ana@example.com>
//	Date: Mon, 02 Jun 2025 09:30:00 +0000
//
//	The report is at [URL: https://docs.example.com]
//
// Parse and ReadFile read RFC 5322 messages (.eml files), preferring the
// text/plain part of multipart bodies and falling back to text/html
// converted to plain text.
package message
