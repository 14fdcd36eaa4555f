package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nightcipher/dreamjournal/internal/auth"
	"github.com/nightcipher/dreamjournal/internal/core"
	"github.com/nightcipher/dreamjournal/internal/store"
)

type ctxKey string

const (
	ctxKeyUserID  ctxKey = "userID"
	ctxKeyIsAdmin ctxKey = "isAdmin"
)

type APIHandler struct {
	dbStore *store.SQLiteStore
	dreams  *core.DreamService
	tokens  *auth.Tokens
	logger  zerolog.Logger
}

func NewAPIHandler(db *store.SQLiteStore, dreams *core.DreamService, tokens *auth.Tokens, logger zerolog.Logger) *APIHandler {
	return &APIHandler{dbStore: db, dreams: dreams, tokens: tokens, logger: logger}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := h.tokens.Validate(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.dbStore.GetUserByID(userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "User not found")
				return
			}
			h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to resolve user identity")
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, user.ID)
		ctx = context.WithValue(ctx, ctxKeyIsAdmin, user.IsAdmin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) AdminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAdmin, _ := r.Context().Value(ctxKeyIsAdmin).(bool); !isAdmin {
			writeError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestUserID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKeyUserID).(int64)
	return id
}

type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.dbStore.CreateUser(req.Username, hashedPassword)
	if err != nil {
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	// Every account gets a profile with journal defaults.
	if err := h.dbStore.CreateProfile(&store.Profile{UserID: user.ID}); err != nil {
		h.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to create profile")
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.dbStore.GetUserByUsername(req.Username)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := h.tokens.Generate(user.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to generate JWT")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type CreateDreamRequest struct {
	Title       string        `json:"title"`
	Narrative   string        `json:"narrative"`
	DateDreamed string        `json:"date_dreamed"`
	MoodRating  *int          `json:"mood_rating"`
	Privacy     store.Privacy `json:"privacy"`
}

func (h *APIHandler) CreateDreamHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	var req CreateDreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Narrative) == "" {
		writeError(w, http.StatusBadRequest, "narrative is required")
		return
	}
	if req.DateDreamed == "" {
		writeError(w, http.StatusBadRequest, "date_dreamed is required")
		return
	}
	if _, err := time.Parse("2006-01-02", req.DateDreamed); err != nil {
		writeError(w, http.StatusBadRequest, "date_dreamed must be YYYY-MM-DD")
		return
	}
	if req.Privacy != "" && !req.Privacy.Valid() {
		writeError(w, http.StatusBadRequest, "privacy must be private, unlisted or public")
		return
	}

	detail, err := h.dreams.CreateEntryFromNarrative(r.Context(), userID, core.CreateDreamInput{
		Title:       req.Title,
		Narrative:   req.Narrative,
		DateDreamed: req.DateDreamed,
		MoodRating:  req.MoodRating,
		Privacy:     req.Privacy,
	})
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to create dream entry")
		writeError(w, http.StatusInternalServerError, "Failed to create dream entry")
		return
	}

	writeJSON(w, http.StatusCreated, detail)
}

func (h *APIHandler) ListDreamsHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	dreams, err := h.dreams.ListDreams(userID)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to list dreams")
		writeError(w, http.StatusInternalServerError, "Failed to list dreams")
		return
	}
	writeJSON(w, http.StatusOK, dreams)
}

// GetDreamHandler serves the detail page data. The fragment query parameter
// is the partial-refresh convention: "messages" and "summary" return only the
// changed piece for inline updates.
func (h *APIHandler) GetDreamHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	dreamID := chi.URLParam(r, "dreamID")

	detail, err := h.dreams.GetDreamDetail(dreamID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dream not found")
			return
		}
		h.logger.Error().Err(err).Str("dream_id", dreamID).Msg("failed to get dream detail")
		writeError(w, http.StatusInternalServerError, "Failed to get dream detail")
		return
	}

	switch r.URL.Query().Get("fragment") {
	case "messages":
		writeJSON(w, http.StatusOK, map[string]any{"messages": detail.Messages})
	case "summary":
		writeJSON(w, http.StatusOK, map[string]any{
			"dream":           detail.Dream,
			"interpretations": detail.Interpretations,
		})
	default:
		writeJSON(w, http.StatusOK, detail)
	}
}

func (h *APIHandler) UpdateDreamHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	dreamID := chi.URLParam(r, "dreamID")

	var req core.UpdateDreamInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.DateDreamed != nil {
		if _, err := time.Parse("2006-01-02", *req.DateDreamed); err != nil {
			writeError(w, http.StatusBadRequest, "date_dreamed must be YYYY-MM-DD")
			return
		}
	}

	dream, err := h.dreams.UpdateDream(dreamID, userID, req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dream not found")
			return
		}
		if errors.Is(err, core.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("dream_id", dreamID).Msg("failed to update dream")
		writeError(w, http.StatusInternalServerError, "Failed to update dream")
		return
	}
	writeJSON(w, http.StatusOK, dream)
}

func (h *APIHandler) DeleteDreamHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	dreamID := chi.URLParam(r, "dreamID")

	if err := h.dreams.DeleteDream(dreamID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dream not found")
			return
		}
		h.logger.Error().Err(err).Str("dream_id", dreamID).Msg("failed to delete dream")
		writeError(w, http.StatusInternalServerError, "Failed to delete dream")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	dreamID := chi.URLParam(r, "dreamID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	assistantMsg, err := h.dreams.PostChatTurn(r.Context(), dreamID, userID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dream not found")
			return
		}
		h.logger.Error().Err(err).Str("dream_id", dreamID).Msg("failed to post chat turn")
		writeError(w, http.StatusInternalServerError, "Failed to post message")
		return
	}
	if assistantMsg == nil {
		// Blank message: nothing was written.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, assistantMsg)
}

type AnswerQuestionRequest struct {
	Answer string `json:"answer"`
}

func (h *APIHandler) AnswerQuestionHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)
	questionID, err := parseID(chi.URLParam(r, "questionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid question id")
		return
	}

	var req AnswerQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.dreams.AnswerClarifyingQuestion(questionID, userID, req.Answer); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Question not found")
			return
		}
		h.logger.Error().Err(err).Int64("question_id", questionID).Msg("failed to answer question")
		writeError(w, http.StatusInternalServerError, "Failed to answer question")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) CommunityHandler(w http.ResponseWriter, r *http.Request) {
	dreams, err := h.dreams.ListCommunityDreams()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list community dreams")
		writeError(w, http.StatusInternalServerError, "Failed to list community dreams")
		return
	}
	writeJSON(w, http.StatusOK, dreams)
}

func (h *APIHandler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	profile, err := h.dbStore.GetProfile(userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to get profile")
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type UpdateProfileRequest struct {
	DisplayName    string                    `json:"display_name"`
	Timezone       string                    `json:"timezone"`
	Style          store.InterpretationStyle `json:"interpretation_style"`
	PrivacyDefault store.Privacy             `json:"privacy_default"`
}

func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := requestUserID(r)

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if !req.Style.Valid() {
		writeError(w, http.StatusBadRequest, "interpretation_style must be balanced, psych or spiritual")
		return
	}
	if !req.PrivacyDefault.Valid() {
		writeError(w, http.StatusBadRequest, "privacy_default must be private, unlisted or public")
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	profile := &store.Profile{
		UserID:         userID,
		DisplayName:    req.DisplayName,
		Timezone:       req.Timezone,
		Style:          req.Style,
		PrivacyDefault: req.PrivacyDefault,
	}
	if err := h.dbStore.UpdateProfile(profile); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to update profile")
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Admin listings

func (h *APIHandler) AdminListDreamsHandler(w http.ResponseWriter, r *http.Request) {
	dreams, err := h.dbStore.ListAllDreams()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list dreams")
		writeError(w, http.StatusInternalServerError, "Failed to list dreams")
		return
	}
	writeJSON(w, http.StatusOK, dreams)
}

func (h *APIHandler) AdminGetDreamHandler(w http.ResponseWriter, r *http.Request) {
	dreamID := chi.URLParam(r, "dreamID")
	dream, err := h.dbStore.GetDreamAnyOwner(dreamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Dream not found")
			return
		}
		h.logger.Error().Err(err).Str("dream_id", dreamID).Msg("failed to get dream")
		writeError(w, http.StatusInternalServerError, "Failed to get dream")
		return
	}
	writeJSON(w, http.StatusOK, dream)
}

func (h *APIHandler) AdminListTagsHandler(w http.ResponseWriter, r *http.Request) {
	tags, err := h.dbStore.ListTags()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list tags")
		writeError(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (h *APIHandler) AdminListSymbolsHandler(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.dbStore.ListSymbols()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list symbols")
		writeError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}
