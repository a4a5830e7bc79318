package chunking

import (
	"regexp"
	"strings"
)

// DefaultSignatureLines is how many trailing non-blank lines are searched for a sign-off.
const DefaultSignatureLines = 6

var (
	// Everything after these lines is the quoted thread.
	threadMarkers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*On\s.{0,200}\bwrote:\s*$`),
		regexp.MustCompile(`(?i)^\s*-{2,}\s*(Original|Forwarded) Message\s*-{2,}\s*$`),
		regexp.MustCompile(`(?i)^\s*Begin forwarded message:\s*$`),
	}

	quotedLine = regexp.MustCompile(`^\s*>`)

	greetingLine = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|dear|greetings|good\s+(morning|afternoon|evening))(\s+[\p{L}'.\-]+){0,3}\s*[,!:.]?\s*$`)

	// RFC 3676 signature delimiter.
	signatureDelimiter = regexp.MustCompile(`^--\s?$`)

	signOffLine = regexp.MustCompile(`(?i)^\s*(best|best regards|best wishes|kind regards|warm regards|warmest regards|regards|many thanks|thanks|thank you|thanks again|cheers|sincerely|yours truly|yours sincerely|all the best|respectfully|sent from my [\w ]+)[,!.]?\s*$`)

	disclaimerPattern = regexp.MustCompile(`(?is)(this (e-?mail|message|communication)( and any (attachments?|files?)( transmitted with it)?)? (is|are|may be|may contain|contains?) .{0,40}(confidential|privileged)|confidentiality notice|^\s*disclaimer\s*:)`)
)

// greetingMaxWords bounds what counts as a stand-alone greeting line.
const greetingMaxWords = 5

// Preprocess removes content that does not describe the message itself:
// the quoted thread below a reply attribution, quoted-reply lines, greeting
// lines, the trailing signature block and boilerplate disclaimer paragraphs.
// signatureLines bounds the sign-off search; values below one disable it.
func Preprocess(text string, signatureLines int) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	lines = cutThread(lines)
	lines = stripSignature(lines, signatureLines)

	kept := lines[:0]
	for _, line := range lines {
		if quotedLine.MatchString(line) {
			continue
		}
		if greetingLine.MatchString(line) && CountWords(line) <= greetingMaxWords {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(dropDisclaimers(strings.Join(kept, "\n")))
}

func cutThread(lines []string) []string {
	for i, line := range lines {
		for _, marker := range threadMarkers {
			if marker.MatchString(line) {
				return lines[:i]
			}
		}
	}
	return lines
}

// stripSignature cuts at a "-- " delimiter, or else at a sign-off line found
// within the last n non-blank lines.
func stripSignature(lines []string, n int) []string {
	for i := len(lines) - 1; i >= 0; i-- {
		if signatureDelimiter.MatchString(lines[i]) {
			return lines[:i]
		}
	}
	if n < 1 {
		return lines
	}

	seen := 0
	for i := len(lines) - 1; i >= 0 && seen < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		seen++
		if signOffLine.MatchString(lines[i]) {
			return lines[:i]
		}
	}
	return lines
}

func dropDisclaimers(text string) string {
	paragraphs := paragraphSplit.Split(text, -1)
	kept := paragraphs[:0]
	for _, p := range paragraphs {
		if disclaimerPattern.MatchString(p) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "\n\n")
}
