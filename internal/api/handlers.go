package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/daredevil-ai/memchat/internal/auth"
	"github.com/daredevil-ai/memchat/internal/core"
	"github.com/daredevil-ai/memchat/internal/docindex"
	"github.com/daredevil-ai/memchat/internal/store"
)

// maxUploadBytes caps document uploads at 10 MiB.
const maxUploadBytes = 10 << 20

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// UserStore is the credential persistence the handlers need.
type UserStore interface {
	CreateUser(username, passwordHash string) (*store.User, error)
	GetUserByUsername(username string) (*store.User, error)
}

// ConversationStore is the transcript persistence the handlers need.
type ConversationStore interface {
	CreateConversation(userID string) (*store.Conversation, error)
	GetConversation(conversationID, userID string) (*store.Conversation, error)
	GetConversations(userID string) ([]store.ConversationSummary, error)
	DeleteConversation(conversationID, userID string) error
}

// ChatPipeline runs one chat turn and returns the reply plus conversation id.
type ChatPipeline interface {
	HandleMessage(ctx context.Context, userID, conversationID, message string) (string, string, error)
}

// DocumentIndex is the per-conversation ephemeral document store.
type DocumentIndex interface {
	Ingest(ctx context.Context, conversationID, filename string, data []byte) (*docindex.Status, error)
	Status(conversationID string) (*docindex.Status, bool)
}

type APIHandler struct {
	users         UserStore
	conversations ConversationStore
	chat          ChatPipeline
	documents     DocumentIndex
}

func NewAPIHandler(users UserStore, conversations ConversationStore, chat ChatPipeline, documents DocumentIndex) *APIHandler {
	return &APIHandler{
		users:         users,
		conversations: conversations,
		chat:          chat,
		documents:     documents,
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateJWT(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				http.Error(w, "Token expired", http.StatusUnauthorized)
			} else {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			}
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if len(req.Username) < 3 {
		http.Error(w, "Username must be at least 3 characters", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		http.Error(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.users.CreateUser(req.Username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			http.Error(w, "Username already taken", http.StatusBadRequest)
			return
		}
		log.Printf("Error creating user %s: %v", req.Username, err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"message":  "User registered successfully",
		"user_id":  user.ID,
		"username": user.Username,
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.users.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error looking up user %s: %v", req.Username, err)
		http.Error(w, "Failed to process login", http.StatusInternalServerError)
		return
	}

	// A missing user and a wrong password answer identically.
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(user.ID, user.Username)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", user.Username, err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"token":    token,
		"user_id":  user.ID,
		"username": user.Username,
		"message":  "Login successful",
	})
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)

	conv, err := h.conversations.CreateConversation(userID)
	if err != nil {
		log.Printf("Error creating conversation for user %s: %v", userID, err)
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"conversation_id": conv.ID,
		"message":         "Conversation created",
	})
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)

	summaries, err := h.conversations.GetConversations(userID)
	if err != nil {
		log.Printf("Error listing conversations for user %s: %v", userID, err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []store.ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"conversations": summaries})
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.conversations.GetConversation(conversationID, userID)
	if err != nil {
		log.Printf("Error getting conversation %s for user %s: %v", conversationID, userID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	conversationID := chi.URLParam(r, "conversationID")

	if err := h.conversations.DeleteConversation(conversationID, userID); err != nil {
		if err.Error() == "conversation not found" {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("Error deleting conversation %s for user %s: %v", conversationID, userID, err)
		http.Error(w, "Failed to delete conversation", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Conversation deleted"})
}

type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "Message cannot be empty", http.StatusBadRequest)
		return
	}

	reply, conversationID, err := h.chat.HandleMessage(r.Context(), userID, req.ConversationID, req.Message)
	if err != nil {
		if errors.Is(err, core.ErrConversationNotFound) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return
		}
		log.Printf("Error handling chat message for user %s: %v", userID, err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"response":        reply,
		"conversation_id": conversationID,
	})
}

func (h *APIHandler) UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.conversations.GetConversation(conversationID, userID)
	if err != nil {
		log.Printf("Error checking conversation %s for user %s: %v", conversationID, userID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Uploaded file is too large (max 10 MB)", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "A 'file' form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		log.Printf("Error reading upload %s for conversation %s: %v", header.Filename, conversationID, err)
		http.Error(w, "Failed to read uploaded file", http.StatusBadRequest)
		return
	}

	status, err := h.documents.Ingest(r.Context(), conversationID, header.Filename, data)
	if err != nil {
		if errors.Is(err, docindex.ErrUnsupportedType) {
			http.Error(w, "Unsupported file type, use .pdf, .txt, or .md", http.StatusBadRequest)
			return
		}
		log.Printf("Error indexing upload %s for conversation %s: %v", header.Filename, conversationID, err)
		http.Error(w, "Failed to index document", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message":     "Document indexed",
		"filename":    status.Filename,
		"chunk_count": status.ChunkCount,
		"expires_at":  status.ExpiresAt,
	})
}

func (h *APIHandler) DocumentStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(string)
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.conversations.GetConversation(conversationID, userID)
	if err != nil {
		log.Printf("Error checking conversation %s for user %s: %v", conversationID, userID, err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	status, ok := h.documents.Status(conversationID)
	if !ok {
		http.Error(w, "No document indexed for this conversation", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
