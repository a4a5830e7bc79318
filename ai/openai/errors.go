package openai

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/mailrag/core"
)

// ErrUnexpectedResponse indicates the service answered with the wrong number of vectors.
var ErrUnexpectedResponse = errors.New("unexpected embedding response")

var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// transientMessages are substrings of the error text the langchaingo client
// produces for network-level failures.
var transientMessages = []string{
	"request timeout",
	"network error",
	"connection reset",
	"connection refused",
	"unexpected eof",
}

// classify marks retryable failures with core.ErrTransient.
func classify(err error) error {
	if isTransient(err) {
		return core.Transient(err)
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == 408 || code == 429 || code >= 500
	}
	for _, s := range transientMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
