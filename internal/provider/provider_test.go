package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimit_MatchesOnlyRateLimitKind(t *testing.T) {
	assert.True(t, IsRateLimit(&Error{Kind: ErrRateLimit, Provider: "anthropic"}))
	assert.False(t, IsRateLimit(&Error{Kind: ErrAuth, Provider: "anthropic"}))
	assert.False(t, IsRateLimit(errors.New("plain error")))
	assert.False(t, IsRateLimit(nil))
}

func TestError_MessageIncludesProviderKindAndWrappedCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := &Error{Kind: ErrNetwork, Provider: "ollama", Err: cause}
	assert.Contains(t, err.Error(), "ollama")
	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestEstimateTokens_ApproximatesCharsDividedByFour(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc")) // rounds up from zero
	assert.Equal(t, 5, EstimateTokens("this is twenty chars")) // 20 chars -> 5
}
