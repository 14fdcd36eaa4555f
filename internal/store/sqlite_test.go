package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SQLiteStore, int64) {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	user, err := s.CreateUser("dreamer", "hash")
	require.NoError(t, err)
	return s, user.ID
}

func testDream(userID int64) *Dream {
	return &Dream{
		UserID:      userID,
		Title:       "Untitled Dream",
		Narrative:   "A narrow staircase.",
		DateDreamed: "2026-08-27",
		Privacy:     PrivacyPrivate,
	}
}

func TestCreateProfileDefaults(t *testing.T) {
	s, userID := newTestStore(t)

	require.NoError(t, s.CreateProfile(&Profile{UserID: userID}))

	p, err := s.GetProfile(userID)
	require.NoError(t, err)
	assert.Equal(t, StyleBalanced, p.Style)
	assert.Equal(t, PrivacyPrivate, p.PrivacyDefault)
	assert.Equal(t, "UTC", p.Timezone)
}

func TestGetOrCreateSymbolKeepsOriginalCategory(t *testing.T) {
	s, _ := newTestStore(t)

	first, err := s.GetOrCreateSymbol("wolf", CategoryAnimal)
	require.NoError(t, err)
	assert.Equal(t, CategoryAnimal, first.Category)

	// A later get-or-create with a different category finds the same row.
	second, err := s.GetOrCreateSymbol("wolf", CategoryAbstract)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, CategoryAnimal, second.Category)

	// Empty category defaults to abstract on creation.
	inferred, err := s.GetOrCreateSymbol("mist", "")
	require.NoError(t, err)
	assert.Equal(t, CategoryAbstract, inferred.Category)
}

func TestAttachSymbolPairIsUnique(t *testing.T) {
	s, userID := newTestStore(t)

	dream := testDream(userID)
	require.NoError(t, s.CreateDream(dream, nil, nil, nil))

	sym, err := s.GetOrCreateSymbol("bird", CategoryAbstract)
	require.NoError(t, err)

	require.NoError(t, s.AttachSymbol(dream.ID, sym.ID, 0.8, "circling overhead"))
	require.NoError(t, s.AttachSymbol(dream.ID, sym.ID, 0.2, "duplicate"))

	links, err := s.ListDreamSymbols(dream.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 0.8, links[0].Confidence)
	assert.Equal(t, "circling overhead", links[0].Note)
}

func TestCreateDreamBundleIsAtomic(t *testing.T) {
	s, userID := newTestStore(t)

	dream := testDream(userID)
	interps := []*Interpretation{
		{Angle: AnglePsych, Summary: "one"},
		{Angle: AngleSpiritual, Summary: "two"},
	}
	opening := &DreamMessage{Role: RoleAssistant, Content: "What stood out?"}
	question := &ClarifyingQuestion{Question: "What stood out?"}

	require.NoError(t, s.CreateDream(dream, interps, opening, question))
	require.NotEmpty(t, dream.ID)

	got, err := s.GetDream(dream.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{}, got.Emotions)
	assert.Nil(t, got.MoodRating)

	listed, err := s.ListInterpretations(dream.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	messages, err := s.GetMessagesByDream(dream.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, RoleAssistant, messages[0].Role)

	questions, err := s.ListClarifyingQuestions(dream.ID)
	require.NoError(t, err)
	require.Len(t, questions, 1)
}

func TestGetDreamEnforcesOwnership(t *testing.T) {
	s, userID := newTestStore(t)

	other, err := s.CreateUser("other", "hash")
	require.NoError(t, err)

	dream := testDream(userID)
	require.NoError(t, s.CreateDream(dream, nil, nil, nil))

	_, err = s.GetDream(dream.ID, other.ID)
	require.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateDream(&Dream{ID: dream.ID, UserID: other.ID, Title: "x", Narrative: "x", DateDreamed: "2026-01-01", Privacy: PrivacyPrivate})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPublicDreams(t *testing.T) {
	s, userID := newTestStore(t)

	private := testDream(userID)
	require.NoError(t, s.CreateDream(private, nil, nil, nil))

	public := testDream(userID)
	public.Title = "Shared"
	public.Privacy = PrivacyPublic
	require.NoError(t, s.CreateDream(public, nil, nil, nil))

	dreams, err := s.ListPublicDreams()
	require.NoError(t, err)
	require.Len(t, dreams, 1)
	assert.Equal(t, "Shared", dreams[0].Title)
}

func TestAnswerClarifyingQuestionOwnership(t *testing.T) {
	s, userID := newTestStore(t)

	other, err := s.CreateUser("other", "hash")
	require.NoError(t, err)

	dream := testDream(userID)
	question := &ClarifyingQuestion{Question: "Who was there?"}
	require.NoError(t, s.CreateDream(dream, nil, nil, question))

	require.ErrorIs(t, s.AnswerClarifyingQuestion(question.ID, other.ID, "nobody"), ErrNotFound)
	require.NoError(t, s.AnswerClarifyingQuestion(question.ID, userID, "my brother"))

	questions, err := s.ListClarifyingQuestions(dream.ID)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "my brother", questions[0].Answer)
}

func TestDeleteDreamRemovesDependentRows(t *testing.T) {
	s, userID := newTestStore(t)

	other, err := s.CreateUser("other", "hash")
	require.NoError(t, err)

	dream := testDream(userID)
	interps := []*Interpretation{
		{Angle: AnglePsych, Summary: "one"},
		{Angle: AngleSpiritual, Summary: "two"},
	}
	opening := &DreamMessage{Role: RoleAssistant, Content: "What stood out?"}
	question := &ClarifyingQuestion{Question: "What stood out?"}
	require.NoError(t, s.CreateDream(dream, interps, opening, question))

	tag, err := s.GetOrCreateTag("water")
	require.NoError(t, err)
	require.NoError(t, s.AttachTag(dream.ID, tag.ID))
	sym, err := s.GetOrCreateSymbol("river", CategoryPlace)
	require.NoError(t, err)
	require.NoError(t, s.AttachSymbol(dream.ID, sym.ID, 0.9, ""))

	// A non-owner's delete must not touch the entry or its dependents.
	require.ErrorIs(t, s.DeleteDream(dream.ID, other.ID), ErrNotFound)
	messages, err := s.GetMessagesByDream(dream.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	require.NoError(t, s.DeleteDream(dream.ID, userID))

	_, err = s.GetDream(dream.ID, userID)
	require.ErrorIs(t, err, ErrNotFound)

	listed, err := s.ListInterpretations(dream.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
	messages, err = s.GetMessagesByDream(dream.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
	questions, err := s.ListClarifyingQuestions(dream.ID)
	require.NoError(t, err)
	assert.Empty(t, questions)
	links, err := s.ListDreamSymbols(dream.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	attached, err := s.ListDreamTags(dream.ID)
	require.NoError(t, err)
	assert.Empty(t, attached)

	// The vocabulary rows themselves survive; only the links go.
	tags, err := s.ListTags()
	require.NoError(t, err)
	require.Len(t, tags, 1)

	require.ErrorIs(t, s.DeleteDream(dream.ID, userID), ErrNotFound)
}

func TestGetLastNMessagesWindowsChronologically(t *testing.T) {
	s, userID := newTestStore(t)

	dream := testDream(userID)
	require.NoError(t, s.CreateDream(dream, nil, nil, nil))

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		msg := &DreamMessage{DreamID: dream.ID, Role: role, Content: string(rune('a' + i))}
		require.NoError(t, s.CreateMessage(msg))
	}

	last, err := s.GetLastNMessages(dream.ID, 3)
	require.NoError(t, err)
	require.Len(t, last, 3)
	assert.Equal(t, "c", last[0].Content)
	assert.Equal(t, "d", last[1].Content)
	assert.Equal(t, "e", last[2].Content)

	all, err := s.GetLastNMessages(dream.ID, 10)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetDreamAnyOwnerIgnoresOwnership(t *testing.T) {
	s, userID := newTestStore(t)

	dream := testDream(userID)
	require.NoError(t, s.CreateDream(dream, nil, nil, nil))

	got, err := s.GetDreamAnyOwner(dream.ID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)

	_, err = s.GetDreamAnyOwner("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserAdmin(t *testing.T) {
	s, userID := newTestStore(t)

	require.NoError(t, s.SetUserAdmin(userID, true))
	user, err := s.GetUserByID(userID)
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	require.ErrorIs(t, s.SetUserAdmin(9999, true), ErrNotFound)
}

func TestMoodRatingRoundTrip(t *testing.T) {
	s, userID := newTestStore(t)

	mood := 7
	dream := testDream(userID)
	dream.MoodRating = &mood
	dream.Emotions = []string{"fear", "relief"}
	require.NoError(t, s.CreateDream(dream, nil, nil, nil))

	got, err := s.GetDream(dream.ID, userID)
	require.NoError(t, err)
	require.NotNil(t, got.MoodRating)
	assert.Equal(t, 7, *got.MoodRating)
	assert.Equal(t, []string{"fear", "relief"}, got.Emotions)
}
