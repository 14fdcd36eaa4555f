package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightcipher/dreamjournal/internal/store"
)

type fakeAI struct {
	meta     DreamMetadata
	metaErr  error
	reply    string
	replyErr error

	lastNarrative string
	lastHistory   []ChatTurn
	lastMessage   string
}

func (f *fakeAI) ExtractDreamMetadata(ctx context.Context, narrative string) (DreamMetadata, error) {
	if f.metaErr != nil {
		return DreamMetadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeAI) GenerateChatReply(ctx context.Context, narrative string, history []ChatTurn, message string) (string, error) {
	f.lastNarrative = narrative
	f.lastHistory = history
	f.lastMessage = message
	if f.replyErr != nil {
		return "", f.replyErr
	}
	return f.reply, nil
}

func newTestService(t *testing.T, ai AIClient) (*DreamService, *store.SQLiteStore, int64) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	user, err := db.CreateUser("dreamer", "hash")
	require.NoError(t, err)
	require.NoError(t, db.CreateProfile(&store.Profile{UserID: user.ID}))

	svc := NewDreamService(db, ai, "test-model", zerolog.Nop())
	return svc, db, user.ID
}

func createInput(narrative string) CreateDreamInput {
	return CreateDreamInput{Narrative: narrative, DateDreamed: "2026-08-27"}
}

func TestCreateEntryWithFullMetadata(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{
		Title:            "Flying Over the City",
		PsychSummary:     "A sense of agency.",
		SpiritualSummary: "Rising above old limits.",
		Tags:             []string{"flight", "freedom"},
		Symbols:          []string{"bird"},
		Emotions:         []string{"joy", "awe"},
		People:           []string{"a stranger"},
		Settings:         []string{"city"},
		FollowupQuestion: "How did the flight feel?",
	}}
	svc, db, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("I was flying over the city."))
	require.NoError(t, err)

	assert.Equal(t, "Flying Over the City", detail.Dream.Title)
	assert.Equal(t, []string{"joy", "awe"}, detail.Dream.Emotions)
	assert.Equal(t, []string{"a stranger"}, detail.Dream.People)
	assert.Equal(t, []string{"city"}, detail.Dream.Settings)
	assert.Equal(t, store.PrivacyPrivate, detail.Dream.Privacy)
	assert.Empty(t, detail.AINotice)

	require.Len(t, detail.Interpretations, 2)
	assert.Equal(t, store.AnglePsych, detail.Interpretations[0].Angle)
	assert.Equal(t, "A sense of agency.", detail.Interpretations[0].Summary)
	assert.Equal(t, store.AngleSpiritual, detail.Interpretations[1].Angle)
	assert.Equal(t, "Rising above old limits.", detail.Interpretations[1].Summary)
	assert.Equal(t, "test-model", detail.Interpretations[0].Model)
	assert.Equal(t, "v1", detail.Interpretations[0].PromptVersion)

	require.Len(t, detail.Messages, 1)
	assert.Equal(t, store.RoleAssistant, detail.Messages[0].Role)
	assert.Equal(t, "How did the flight feel?", detail.Messages[0].Content)

	require.Len(t, detail.Questions, 1)
	assert.Equal(t, "How did the flight feel?", detail.Questions[0].Question)
	assert.Empty(t, detail.Questions[0].Answer)

	require.Len(t, detail.Tags, 2)
	names := []string{detail.Tags[0].Name, detail.Tags[1].Name}
	assert.ElementsMatch(t, []string{"flight", "freedom"}, names)

	require.Len(t, detail.Symbols, 1)
	assert.Equal(t, "bird", detail.Symbols[0].Symbol.Name)
	assert.Equal(t, store.CategoryAbstract, detail.Symbols[0].Symbol.Category)

	// One row per tag name, attached to the entry.
	tags, err := db.ListTags()
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestCreateEntryDegradesWhenAIUnavailable(t *testing.T) {
	ai := &fakeAI{metaErr: fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrServiceUnavailable)}
	svc, _, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A dark forest."))
	require.NoError(t, err)

	assert.Equal(t, "Untitled Dream", detail.Dream.Title)
	assert.Empty(t, detail.Dream.Emotions)
	assert.Empty(t, detail.Dream.People)
	assert.Empty(t, detail.Dream.Settings)
	assert.Contains(t, detail.AINotice, "AI service unavailable")

	require.Len(t, detail.Interpretations, 2)
	assert.Equal(t, "Psychological interpretation pending.", detail.Interpretations[0].Summary)
	assert.Equal(t, "Spiritual interpretation pending.", detail.Interpretations[1].Summary)

	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "What emotion felt strongest in this dream?", detail.Messages[0].Content)
	assert.Empty(t, detail.Tags)
	assert.Empty(t, detail.Symbols)
}

func TestCreateEntryPrefersRawTitleOverDefault(t *testing.T) {
	ai := &fakeAI{metaErr: fmt.Errorf("%w: down", ErrServiceUnavailable)}
	svc, _, userID := newTestService(t, ai)

	input := createInput("Waves everywhere.")
	input.Title = "My Ocean Dream"
	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, input)
	require.NoError(t, err)
	assert.Equal(t, "My Ocean Dream", detail.Dream.Title)
}

func TestTagGetOrCreateIsIdempotentAcrossEntries(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{Tags: []string{"water"}}}
	svc, db, userID := newTestService(t, ai)

	first, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("Rain."))
	require.NoError(t, err)
	second, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A flood."))
	require.NoError(t, err)

	tags, err := db.ListTags()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "water", tags[0].Name)

	firstTags, err := db.ListDreamTags(first.Dream.ID)
	require.NoError(t, err)
	secondTags, err := db.ListDreamTags(second.Dream.ID)
	require.NoError(t, err)
	require.Len(t, firstTags, 1)
	require.Len(t, secondTags, 1)
	assert.Equal(t, firstTags[0].ID, secondTags[0].ID)
}

func TestPostChatTurnBlankMessageIsNoOp(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{}, reply: "should never be called"}
	svc, db, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A quiet room."))
	require.NoError(t, err)

	msg, err := svc.PostChatTurn(context.Background(), detail.Dream.ID, userID, "   \n\t ")
	require.NoError(t, err)
	assert.Nil(t, msg)

	messages, err := db.GetMessagesByDream(detail.Dream.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1) // Only the opening assistant message.
}

func TestPostChatTurnAppendsUserAndAssistantMessages(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{FollowupQuestion: "What stood out?"}, reply: "That sounds significant."}
	svc, db, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A long hallway."))
	require.NoError(t, err)

	msg, err := svc.PostChatTurn(context.Background(), detail.Dream.ID, userID, "  The doors kept multiplying.  ")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, store.RoleAssistant, msg.Role)
	assert.Equal(t, "That sounds significant.", msg.Content)

	// The context handed to the adapter reflects the thread before this
	// turn; the new message travels separately.
	require.Len(t, ai.lastHistory, 1)
	assert.Equal(t, "What stood out?", ai.lastHistory[0].Content)
	assert.Equal(t, "The doors kept multiplying.", ai.lastMessage)
	assert.Equal(t, "A long hallway.", ai.lastNarrative)

	messages, err := db.GetMessagesByDream(detail.Dream.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, store.RoleUser, messages[1].Role)
	assert.Equal(t, "The doors kept multiplying.", messages[1].Content)
	assert.Equal(t, store.RoleAssistant, messages[2].Role)
}

func TestPostChatTurnSubstitutesUnavailableReply(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{}}
	svc, _, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("Fog."))
	require.NoError(t, err)

	ai.replyErr = fmt.Errorf("%w: timeout", ErrServiceUnavailable)
	msg, err := svc.PostChatTurn(context.Background(), detail.Dream.ID, userID, "Hello?")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Contains(t, msg.Content, "AI unavailable:")
}

func TestPostChatTurnFallsBackOnEmptyReply(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{}, reply: "   "}
	svc, _, userID := newTestService(t, ai)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("Static."))
	require.NoError(t, err)

	msg, err := svc.PostChatTurn(context.Background(), detail.Dream.ID, userID, "Anything?")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Thanks. I'll incorporate that into your dream context.", msg.Content)
}

func TestPostChatTurnUnknownDream(t *testing.T) {
	svc, _, userID := newTestService(t, &fakeAI{})
	_, err := svc.PostChatTurn(context.Background(), "no-such-dream", userID, "hi")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteDreamCascadesAndKeepsSharedTags(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{Tags: []string{"water"}, Symbols: []string{"river"}}}
	svc, db, userID := newTestService(t, ai)

	doomed, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A flood."))
	require.NoError(t, err)
	survivor, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("A calm lake."))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDream(doomed.Dream.ID, userID))

	_, err = svc.GetDreamDetail(doomed.Dream.ID, userID)
	require.ErrorIs(t, err, store.ErrNotFound)

	interps, err := db.ListInterpretations(doomed.Dream.ID)
	require.NoError(t, err)
	assert.Empty(t, interps)
	messages, err := db.GetMessagesByDream(doomed.Dream.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
	questions, err := db.ListClarifyingQuestions(doomed.Dream.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)
	links, err := db.ListDreamSymbols(doomed.Dream.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	// Shared tag and symbol rows survive and stay attached to the other entry.
	tags, err := db.ListDreamTags(survivor.Dream.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "water", tags[0].Name)
	symbols, err := db.ListDreamSymbols(survivor.Dream.ID)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
}

func TestUpdateDreamOwnershipEnforced(t *testing.T) {
	ai := &fakeAI{meta: DreamMetadata{}}
	svc, db, userID := newTestService(t, ai)

	other, err := db.CreateUser("intruder", "hash")
	require.NoError(t, err)

	detail, err := svc.CreateEntryFromNarrative(context.Background(), userID, createInput("Private thoughts."))
	require.NoError(t, err)

	title := "Hijacked"
	_, err = svc.UpdateDream(detail.Dream.ID, other.ID, UpdateDreamInput{Title: &title})
	require.ErrorIs(t, err, store.ErrNotFound)

	err = svc.DeleteDream(detail.Dream.ID, other.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}
