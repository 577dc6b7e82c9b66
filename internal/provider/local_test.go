package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ReturnsCannedResponseOnMatchingSubstring(t *testing.T) {
	l := &Local{Responses: []CannedResponse{
		{WhenContains: "creation task", Reply: "1. Write main.go [category: CodeGeneration]\n"},
	}}

	resp, err := l.SendPrompt(context.Background(), "Goal: creation task: hello world\n", nil)
	require.NoError(t, err)
	assert.Equal(t, "1. Write main.go [category: CodeGeneration]\n", resp.Text)
}

func TestLocal_FirstMatchingResponseWins(t *testing.T) {
	l := &Local{Responses: []CannedResponse{
		{WhenContains: "quality", Reply: "quality: Excellent\n"},
		{WhenContains: "quality: ", Reply: "should never be reached\n"},
	}}

	resp, err := l.SendPrompt(context.Background(), "please report quality: now", nil)
	require.NoError(t, err)
	assert.Equal(t, "quality: Excellent\n", resp.Text)
}

func TestLocal_FallsBackToEchoWhenNothingMatches(t *testing.T) {
	l := NewLocal()
	resp, err := l.SendPrompt(context.Background(), "anything at all", nil)
	require.NoError(t, err)
	assert.Equal(t, "Echo: anything at all", resp.Text)
}

func TestLocal_RespectsCancelledContext(t *testing.T) {
	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.SendPrompt(ctx, "irrelevant", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_InvokesOnChunkWithFinalReply(t *testing.T) {
	l := NewLocal()
	var gotKind ChunkKind
	var gotText string
	_, err := l.SendPrompt(context.Background(), "hello", func(kind ChunkKind, text string) {
		gotKind = kind
		gotText = text
	})
	require.NoError(t, err)
	assert.Equal(t, ChunkContent, gotKind)
	assert.Equal(t, "Echo: hello", gotText)
}

func TestLocal_ReportsCapabilities(t *testing.T) {
	l := NewLocal()
	assert.Equal(t, "local", l.Name())
	assert.False(t, l.HandlesOwnMetrics())
	assert.Greater(t, l.ContextSize(), 0)
}
