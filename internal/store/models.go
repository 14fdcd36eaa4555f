package store

import "time"

// Privacy controls who can see a dream entry.
type Privacy string

const (
	PrivacyPrivate  Privacy = "private"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPublic   Privacy = "public"
)

func (p Privacy) Valid() bool {
	switch p {
	case PrivacyPrivate, PrivacyUnlisted, PrivacyPublic:
		return true
	}
	return false
}

// InterpretationStyle is the user's preferred interpretive angle.
type InterpretationStyle string

const (
	StyleBalanced  InterpretationStyle = "balanced"
	StylePsych     InterpretationStyle = "psych"
	StyleSpiritual InterpretationStyle = "spiritual"
)

func (s InterpretationStyle) Valid() bool {
	switch s {
	case StyleBalanced, StylePsych, StyleSpiritual:
		return true
	}
	return false
}

// SymbolCategory classifies a recurring dream motif.
type SymbolCategory string

const (
	CategoryAnimal   SymbolCategory = "animal"
	CategoryObject   SymbolCategory = "object"
	CategoryPlace    SymbolCategory = "place"
	CategoryPerson   SymbolCategory = "person"
	CategoryEvent    SymbolCategory = "event"
	CategoryAbstract SymbolCategory = "abstract"
)

func (c SymbolCategory) Valid() bool {
	switch c {
	case CategoryAnimal, CategoryObject, CategoryPlace, CategoryPerson, CategoryEvent, CategoryAbstract:
		return true
	}
	return false
}

// Angle identifies which lens an interpretation was written from.
type Angle string

const (
	AnglePsych     Angle = "psych"
	AngleSpiritual Angle = "spiritual"
	AngleCombined  Angle = "combined"
)

// MessageRole is the author of one chat turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

func (r MessageRole) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds per-user journal preferences, created with defaults at signup.
type Profile struct {
	UserID         int64               `json:"user_id"`
	DisplayName    string              `json:"display_name"`
	Timezone       string              `json:"timezone"`
	Style          InterpretationStyle `json:"interpretation_style"`
	PrivacyDefault Privacy             `json:"privacy_default"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Symbol struct {
	ID          int64          `json:"id"`
	Name        string         `json:"name"`
	Category    SymbolCategory `json:"category"`
	Description string         `json:"description,omitempty"`
}

type Dream struct {
	ID          string    `json:"id"` // Using UUID for external ID
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Narrative   string    `json:"narrative"`
	DateDreamed string    `json:"date_dreamed"` // YYYY-MM-DD
	MoodRating  *int      `json:"mood_rating"`  // Nullable
	Emotions    []string  `json:"emotions"`
	People      []string  `json:"people"`
	Settings    []string  `json:"settings"`
	Privacy     Privacy   `json:"privacy"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SymbolLink is a confidence-weighted association between a dream and a symbol.
type SymbolLink struct {
	Symbol     Symbol  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

type Interpretation struct {
	ID                  int64     `json:"id"`
	DreamID             string    `json:"dream_id"`
	Angle               Angle     `json:"angle"`
	Summary             string    `json:"summary"`
	ReflectionQuestions []string  `json:"reflection_questions"`
	CreatedAt           time.Time `json:"created_at"`
	Model               string    `json:"model,omitempty"`
	PromptVersion       string    `json:"prompt_version,omitempty"`
}

type ClarifyingQuestion struct {
	ID        int64     `json:"id"`
	DreamID   string    `json:"dream_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

type DreamMessage struct {
	ID        string      `json:"id"` // Using UUID for external ID
	DreamID   string      `json:"dream_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}
