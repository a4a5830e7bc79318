package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/mailrag/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), transient: true},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, transient: true},
		{name: "sanitized timeout", err: errors.New("failed to create openai embeddings: request timeout: API call exceeded deadline"), transient: true},
		{name: "sanitized network", err: errors.New("network error: failed to reach API server"), transient: true},
		{name: "rate limited", err: errors.New("API returned unexpected status code: 429: Rate limit reached"), transient: true},
		{name: "server error", err: errors.New("API returned unexpected status code: 503"), transient: true},
		{name: "bad request", err: errors.New("API returned unexpected status code: 400: invalid input"), transient: false},
		{name: "unauthorized", err: errors.New("API returned unexpected status code: 401: Incorrect API key"), transient: false},
		{name: "plain", err: errors.New("decode response: invalid character"), transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.Equal(t, tt.transient, core.IsTransient(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, classify(nil))
}
