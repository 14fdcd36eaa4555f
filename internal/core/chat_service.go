package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nightcipher/dreamjournal/internal/store"
)

const (
	defaultTitle = "Untitled Dream"

	placeholderPsychSummary     = "Psychological interpretation pending."
	placeholderSpiritualSummary = "Spiritual interpretation pending."

	fallbackOpeningQuestion = "What emotion felt strongest in this dream?"
	fallbackChatReply       = "Thanks. I'll incorporate that into your dream context."

	promptVersion = "v1"
)

// ErrInvalidInput marks update payloads that fail validation, so handlers can
// branch with errors.Is the same way they do for store.ErrNotFound.
var ErrInvalidInput = errors.New("invalid input")

// DreamService orchestrates the multi-entity writes behind entry submission
// and chat turns.
type DreamService struct {
	dbStore   *store.SQLiteStore
	ai        AIClient
	modelName string
	logger    zerolog.Logger
}

func NewDreamService(db *store.SQLiteStore, ai AIClient, modelName string, logger zerolog.Logger) *DreamService {
	return &DreamService{
		dbStore:   db,
		ai:        ai,
		modelName: modelName,
		logger:    logger,
	}
}

// CreateDreamInput carries the validated form fields for a new entry.
type CreateDreamInput struct {
	Title       string
	Narrative   string
	DateDreamed string // YYYY-MM-DD
	MoodRating  *int
	Privacy     store.Privacy // empty means the profile default
}

// DreamDetail bundles everything the presentation layer needs for full or
// partial rendering of an entry.
type DreamDetail struct {
	Dream           store.Dream                `json:"dream"`
	Interpretations []store.Interpretation     `json:"interpretations"`
	Messages        []store.DreamMessage       `json:"messages"`
	Questions       []store.ClarifyingQuestion `json:"clarifying_questions"`
	Tags            []store.Tag                `json:"tags"`
	Symbols         []store.SymbolLink         `json:"symbols"`

	// AINotice is set when metadata extraction was unavailable at creation
	// time, for display alongside the new entry.
	AINotice string `json:"ai_notice,omitempty"`
}

// CreateEntryFromNarrative runs extraction and persists the entry, its two
// interpretations, the opening assistant message and the clarifying question
// as one unit. An unavailable AI service degrades to empty metadata and a
// user-visible notice; it never blocks entry creation.
func (s *DreamService) CreateEntryFromNarrative(ctx context.Context, userID int64, input CreateDreamInput) (*DreamDetail, error) {
	var notice string
	meta, err := s.ai.ExtractDreamMetadata(ctx, input.Narrative)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("metadata extraction unavailable")
		notice = err.Error()
		meta = DreamMetadata{}
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = strings.TrimSpace(input.Title)
	}
	if title == "" {
		title = defaultTitle
	}

	privacy := input.Privacy
	if !privacy.Valid() {
		privacy = s.defaultPrivacy(userID)
	}

	dream := &store.Dream{
		UserID:      userID,
		Title:       title,
		Narrative:   input.Narrative,
		DateDreamed: input.DateDreamed,
		MoodRating:  input.MoodRating,
		Emotions:    meta.Emotions,
		People:      meta.People,
		Settings:    meta.Settings,
		Privacy:     privacy,
	}

	psychSummary := strings.TrimSpace(meta.PsychSummary)
	if psychSummary == "" {
		psychSummary = placeholderPsychSummary
	}
	spiritualSummary := strings.TrimSpace(meta.SpiritualSummary)
	if spiritualSummary == "" {
		spiritualSummary = placeholderSpiritualSummary
	}
	interps := []*store.Interpretation{
		{Angle: store.AnglePsych, Summary: psychSummary, Model: s.modelName, PromptVersion: promptVersion},
		{Angle: store.AngleSpiritual, Summary: spiritualSummary, Model: s.modelName, PromptVersion: promptVersion},
	}

	openingQuestion := strings.TrimSpace(meta.FollowupQuestion)
	if openingQuestion == "" {
		openingQuestion = fallbackOpeningQuestion
	}
	opening := &store.DreamMessage{Role: store.RoleAssistant, Content: openingQuestion}
	question := &store.ClarifyingQuestion{Question: openingQuestion}

	if err := s.dbStore.CreateDream(dream, interps, opening, question); err != nil {
		return nil, fmt.Errorf("failed to create dream entry: %w", err)
	}

	s.attachTags(dream.ID, meta.Tags)
	s.attachSymbols(dream.ID, meta.Symbols)

	detail, err := s.assembleDetail(dream)
	if err != nil {
		return nil, err
	}
	detail.AINotice = notice
	return detail, nil
}

func (s *DreamService) defaultPrivacy(userID int64) store.Privacy {
	profile, err := s.dbStore.GetProfile(userID)
	if err != nil {
		return store.PrivacyPrivate
	}
	return profile.PrivacyDefault
}

// attachTags is idempotent per name; individual failures are logged and
// skipped so the already-committed entry survives.
func (s *DreamService) attachTags(dreamID string, names []string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tag, err := s.dbStore.GetOrCreateTag(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("tag", name).Str("dream_id", dreamID).Msg("failed to resolve tag")
			continue
		}
		if err := s.dbStore.AttachTag(dreamID, tag.ID); err != nil {
			s.logger.Warn().Err(err).Str("tag", name).Str("dream_id", dreamID).Msg("failed to attach tag")
		}
	}
}

func (s *DreamService) attachSymbols(dreamID string, names []string) {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sym, err := s.dbStore.GetOrCreateSymbol(name, store.CategoryAbstract)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", name).Str("dream_id", dreamID).Msg("failed to resolve symbol")
			continue
		}
		if err := s.dbStore.AttachSymbol(dreamID, sym.ID, 0, ""); err != nil {
			s.logger.Warn().Err(err).Str("symbol", name).Str("dream_id", dreamID).Msg("failed to attach symbol")
		}
	}
}

// PostChatTurn appends the user's message and the assistant's reply. A blank
// message is a silent no-op and returns a nil message. The context passed to
// the AI reflects the thread as it existed before this turn; the new message
// travels separately as the current turn.
func (s *DreamService) PostChatTurn(ctx context.Context, dreamID string, userID int64, text string) (*store.DreamMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	dream, err := s.dbStore.GetDream(dreamID, userID)
	if err != nil {
		return nil, err
	}

	history, err := s.dbStore.GetLastNMessages(dreamID, ChatHistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	userMsg := &store.DreamMessage{DreamID: dreamID, Role: store.RoleUser, Content: text}
	if err := s.dbStore.CreateMessage(userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	reply, err := s.ai.GenerateChatReply(ctx, dream.Narrative, BuildChatContext(history), text)
	if err != nil {
		if !errors.Is(err, ErrServiceUnavailable) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("dream_id", dreamID).Msg("chat reply unavailable")
		reply = fmt.Sprintf("AI unavailable: %v", err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = fallbackChatReply
	}

	assistantMsg := &store.DreamMessage{DreamID: dreamID, Role: store.RoleAssistant, Content: reply}
	if err := s.dbStore.CreateMessage(assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	return assistantMsg, nil
}

// GetDreamDetail loads the entry with everything attached to it.
func (s *DreamService) GetDreamDetail(dreamID string, userID int64) (*DreamDetail, error) {
	dream, err := s.dbStore.GetDream(dreamID, userID)
	if err != nil {
		return nil, err
	}
	return s.assembleDetail(dream)
}

func (s *DreamService) assembleDetail(dream *store.Dream) (*DreamDetail, error) {
	interps, err := s.dbStore.ListInterpretations(dream.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load interpretations: %w", err)
	}
	messages, err := s.dbStore.GetMessagesByDream(dream.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	questions, err := s.dbStore.ListClarifyingQuestions(dream.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load clarifying questions: %w", err)
	}
	tags, err := s.dbStore.ListDreamTags(dream.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	symbols, err := s.dbStore.ListDreamSymbols(dream.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}

	return &DreamDetail{
		Dream:           *dream,
		Interpretations: interps,
		Messages:        messages,
		Questions:       questions,
		Tags:            tags,
		Symbols:         symbols,
	}, nil
}

func (s *DreamService) ListDreams(userID int64) ([]store.Dream, error) {
	return s.dbStore.ListDreamsByUser(userID)
}

func (s *DreamService) ListCommunityDreams() ([]store.Dream, error) {
	return s.dbStore.ListPublicDreams()
}

// UpdateDreamInput holds optional entry edits; nil fields are left unchanged.
type UpdateDreamInput struct {
	Title       *string        `json:"title"`
	Narrative   *string        `json:"narrative"`
	DateDreamed *string        `json:"date_dreamed"`
	MoodRating  *int           `json:"mood_rating"`
	Privacy     *store.Privacy `json:"privacy"`
}

func (s *DreamService) UpdateDream(dreamID string, userID int64, input UpdateDreamInput) (*store.Dream, error) {
	dream, err := s.dbStore.GetDream(dreamID, userID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		dream.Title = strings.TrimSpace(*input.Title)
	}
	if input.Narrative != nil && strings.TrimSpace(*input.Narrative) != "" {
		dream.Narrative = *input.Narrative
	}
	if input.DateDreamed != nil {
		dream.DateDreamed = *input.DateDreamed
	}
	if input.MoodRating != nil {
		dream.MoodRating = input.MoodRating
	}
	if input.Privacy != nil {
		if !input.Privacy.Valid() {
			return nil, fmt.Errorf("%w: privacy value %q", ErrInvalidInput, *input.Privacy)
		}
		dream.Privacy = *input.Privacy
	}

	if err := s.dbStore.UpdateDream(dream); err != nil {
		return nil, err
	}
	return dream, nil
}

func (s *DreamService) DeleteDream(dreamID string, userID int64) error {
	return s.dbStore.DeleteDream(dreamID, userID)
}

func (s *DreamService) AnswerClarifyingQuestion(questionID, userID int64, answer string) error {
	return s.dbStore.AnswerClarifyingQuestion(questionID, userID, strings.TrimSpace(answer))
}
