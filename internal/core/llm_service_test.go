package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDreamMetadataStrictJSON(t *testing.T) {
	meta := parseDreamMetadata(`{"title": "Flying Over the City", "tags": ["flight", "freedom"], "followup_question": "How did the flight feel?"}`)
	assert.Equal(t, "Flying Over the City", meta.Title)
	assert.Equal(t, []string{"flight", "freedom"}, meta.Tags)
	assert.Equal(t, "How did the flight feel?", meta.FollowupQuestion)
}

func TestParseDreamMetadataSalvagesTrailingProse(t *testing.T) {
	text := "Sure! Here is the JSON you asked for:\n" +
		`{"title": "The Locked Door", "psych_summary": "A boundary theme.", "symbols": ["door"]}` +
		"\nLet me know if you need anything else."
	meta := parseDreamMetadata(text)
	assert.Equal(t, "The Locked Door", meta.Title)
	assert.Equal(t, "A boundary theme.", meta.PsychSummary)
	assert.Equal(t, []string{"door"}, meta.Symbols)
}

func TestParseDreamMetadataNoJSONYieldsEmpty(t *testing.T) {
	for _, text := range []string{
		"",
		"I could not produce structured output.",
		"{ this is not json either }",
		"}{",
	} {
		meta := parseDreamMetadata(text)
		assert.Equal(t, DreamMetadata{}, meta, "input %q", text)
	}
}

func TestParseDreamMetadataPartialFieldsDefaultEmpty(t *testing.T) {
	meta := parseDreamMetadata(`{"title": "Only a Title"}`)
	assert.Equal(t, "Only a Title", meta.Title)
	assert.Empty(t, meta.Tags)
	assert.Empty(t, meta.PsychSummary)
	assert.Empty(t, meta.FollowupQuestion)
}

func TestCredentiallessAdapterReportsServiceUnavailable(t *testing.T) {
	svc, err := NewLLMService(context.Background(), "", "")
	require.NoError(t, err)
	defer svc.Close()

	// With GEN_MODEL unset the adapter is the one that picks the model.
	require.Equal(t, defaultModelName, svc.ModelName())

	_, err = svc.ExtractDreamMetadata(context.Background(), "a dream")
	require.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = svc.GenerateChatReply(context.Background(), "a dream", nil, "hello")
	require.ErrorIs(t, err, ErrServiceUnavailable)
}
