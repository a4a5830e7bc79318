package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "greeting and sign-off",
			in:   "Hi Bob,\n\nThe deployment finished without errors.\n\nBest,\nAlice\nSenior Engineer",
			want: "The deployment finished without errors.",
		},
		{
			name: "greeting with content is kept",
			in:   "Hello, the server is down again.",
			want: "Hello, the server is down again.",
		},
		{
			name: "reply attribution cuts the thread",
			in:   "Sounds like a plan to me.\n\nOn Tue, Mar 4, 2025 at 10:00 AM Bob <bob@example.com> wrote:\n> Can we ship on Friday?\n> Bob",
			want: "Sounds like a plan to me.",
		},
		{
			name: "original message marker",
			in:   "Forwarding for visibility.\n\n-----Original Message-----\nFrom: someone",
			want: "Forwarding for visibility.",
		},
		{
			name: "quoted lines",
			in:   "I agree with this.\n> previous text\nLet us proceed.",
			want: "I agree with this.\nLet us proceed.",
		},
		{
			name: "signature delimiter",
			in:   "Content line here now.\n-- \nAlice Smith\n555-1234",
			want: "Content line here now.",
		},
		{
			name: "sent from device",
			in:   "Running ten minutes late to the standup.\n\nSent from my iPhone",
			want: "Running ten minutes late to the standup.",
		},
		{
			name: "confidentiality notice",
			in:   "Please review the attached numbers today.\n\nCONFIDENTIALITY NOTICE: This email is intended only for the named recipient.",
			want: "Please review the attached numbers today.",
		},
		{
			name: "attachments disclaimer",
			in:   "Budget approved.\n\nThis email and any attachments are confidential and intended solely for the addressee.",
			want: "Budget approved.",
		},
		{
			name: "crlf",
			in:   "Line one of the body.\r\nLine two of the body.",
			want: "Line one of the body.\nLine two of the body.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in, DefaultSignatureLines))
		})
	}
}

func TestPreprocess_SignOffOutsideWindow(t *testing.T) {
	in := "Thanks\nline one of notes\nline two of notes\nline three of notes"
	assert.Equal(t, in, Preprocess(in, 2))
	assert.Equal(t, "", Preprocess(in, 4))
}
