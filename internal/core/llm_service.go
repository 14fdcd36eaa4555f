package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nightcipher/dreamjournal/internal/store"
)

// ErrServiceUnavailable reports that the external AI call could not be made:
// the credential is missing, or the call itself failed. Parse failures are
// never surfaced this way.
var ErrServiceUnavailable = errors.New("AI service unavailable")

const (
	defaultModelName = "gemini-1.5-flash-latest"

	extractSystemInstruction = "You are NightCipher, a dream interpretation assistant. " +
		"Return JSON only, no markdown. " +
		"Schema: {" +
		`"title": str, ` +
		`"psych_summary": str, ` +
		`"spiritual_summary": str, ` +
		`"tags": [str], ` +
		`"symbols": [str], ` +
		`"emotions": [str], ` +
		`"people": [str], ` +
		`"settings": [str], ` +
		`"followup_question": str` +
		"}. Keep summaries under 120 words each."

	chatSystemInstruction = "You are NightCipher, a calm, professional dream companion. " +
		"Ask gentle questions and reflect both psychological and spiritual angles. " +
		"Keep replies under 120 words."
)

// DreamMetadata is the structured result of one extraction call. Fields the
// model omitted stay at their zero value; callers substitute defaults.
type DreamMetadata struct {
	Title            string   `json:"title"`
	PsychSummary     string   `json:"psych_summary"`
	SpiritualSummary string   `json:"spiritual_summary"`
	Tags             []string `json:"tags"`
	Symbols          []string `json:"symbols"`
	Emotions         []string `json:"emotions"`
	People           []string `json:"people"`
	Settings         []string `json:"settings"`
	FollowupQuestion string   `json:"followup_question"`
}

// AIClient is what the dream service needs from the AI adapter. Tests supply
// a fake; LLMService is the Gemini-backed implementation.
type AIClient interface {
	ExtractDreamMetadata(ctx context.Context, narrative string) (DreamMetadata, error)
	GenerateChatReply(ctx context.Context, narrative string, history []ChatTurn, message string) (string, error)
}

type LLMService struct {
	client    *genai.Client
	modelName string
}

// NewLLMService builds the Gemini adapter. An empty API key is not an error
// here: the adapter is constructed credential-less and every call reports
// ErrServiceUnavailable, so entries can still be recorded without the AI.
func NewLLMService(ctx context.Context, apiKey, modelName string) (*LLMService, error) {
	if modelName == "" {
		modelName = defaultModelName
	}
	if apiKey == "" {
		return &LLMService{modelName: modelName}, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &LLMService{client: client, modelName: modelName}, nil
}

func (s *LLMService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ModelName identifies the model recorded on generated interpretations.
func (s *LLMService) ModelName() string {
	return s.modelName
}

// ExtractDreamMetadata makes exactly one completion call and normalizes the
// output. Malformed or non-JSON output yields an empty DreamMetadata, never
// an error; only missing credentials or a failed call return one.
func (s *LLMService) ExtractDreamMetadata(ctx context.Context, narrative string) (DreamMetadata, error) {
	if s.client == nil {
		return DreamMetadata{}, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrServiceUnavailable)
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractSystemInstruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(narrative))
	if err != nil {
		return DreamMetadata{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	return parseDreamMetadata(collectText(resp)), nil
}

// GenerateChatReply sends the narrative as leading context, then the supplied
// history in order, then the new user message. Empty reply text is valid.
func (s *LLMService) GenerateChatReply(ctx context.Context, narrative string, history []ChatTurn, message string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrServiceUnavailable)
	}

	model := s.client.GenerativeModel(s.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []genai.Part{genai.Text("Dream narrative: " + narrative)},
	})
	for _, turn := range history {
		role := "user"
		if turn.Role == store.RoleAssistant {
			role = "model" // Gemini's name for the assistant role
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(turn.Content)},
		})
	}

	chatSession := model.StartChat()
	chatSession.History = contents

	resp, err := chatSession.SendMessage(ctx, genai.Text(message))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	return strings.TrimSpace(collectText(resp)), nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

// parseDreamMetadata is the two-stage parse: strict JSON first, then a
// salvage attempt on the substring between the first '{' and the last '}'.
// Anything else yields the empty result.
func parseDreamMetadata(text string) DreamMetadata {
	if text == "" {
		return DreamMetadata{}
	}

	var meta DreamMetadata
	if err := json.Unmarshal([]byte(text), &meta); err == nil {
		return meta
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		var salvaged DreamMetadata
		if err := json.Unmarshal([]byte(text[start:end+1]), &salvaged); err == nil {
			return salvaged
		}
	}

	return DreamMetadata{}
}
