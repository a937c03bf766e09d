package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daredevil-ai/memchat/internal/auth"
	"github.com/daredevil-ai/memchat/internal/config"
	"github.com/daredevil-ai/memchat/internal/core"
	"github.com/daredevil-ai/memchat/internal/docindex"
	"github.com/daredevil-ai/memchat/internal/store"
)

func init() {
	config.AppConfig.JWTSecret = "test-secret"
}

type fakeUserStore struct {
	users map[string]*store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*store.User)}
}

func (f *fakeUserStore) CreateUser(username, passwordHash string) (*store.User, error) {
	if _, ok := f.users[username]; ok {
		return nil, store.ErrUsernameTaken
	}
	user := &store.User{
		ID:           fmt.Sprintf("user-%d", len(f.users)+1),
		Username:     username,
		PasswordHash: passwordHash,
	}
	f.users[username] = user
	return user, nil
}

func (f *fakeUserStore) GetUserByUsername(username string) (*store.User, error) {
	return f.users[username], nil
}

type fakeConversations struct {
	conversations map[string]*store.Conversation
	deleteErr     error
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{conversations: make(map[string]*store.Conversation)}
}

func (f *fakeConversations) CreateConversation(userID string) (*store.Conversation, error) {
	conv := &store.Conversation{
		ID:     fmt.Sprintf("conv-%d", len(f.conversations)+1),
		UserID: userID,
		Title:  store.DefaultTitle,
	}
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeConversations) GetConversation(conversationID, userID string) (*store.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, nil
	}
	return conv, nil
}

func (f *fakeConversations) GetConversations(userID string) ([]store.ConversationSummary, error) {
	var out []store.ConversationSummary
	for _, conv := range f.conversations {
		if conv.UserID == userID {
			out = append(out, store.ConversationSummary{ID: conv.ID, Title: conv.Title})
		}
	}
	return out, nil
}

func (f *fakeConversations) DeleteConversation(conversationID, userID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	conv, ok := f.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return errors.New("conversation not found")
	}
	delete(f.conversations, conversationID)
	return nil
}

type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) HandleMessage(ctx context.Context, userID, conversationID, message string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	if conversationID == "" {
		conversationID = "conv-new"
	}
	return f.reply, conversationID, nil
}

type fakeDocs struct {
	status    *docindex.Status
	ingestErr error
}

func (f *fakeDocs) Ingest(ctx context.Context, conversationID, filename string, data []byte) (*docindex.Status, error) {
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	f.status = &docindex.Status{Filename: filename, ChunkCount: 2, ExpiresAt: time.Now().Add(30 * time.Minute)}
	return f.status, nil
}

func (f *fakeDocs) Status(conversationID string) (*docindex.Status, bool) {
	if f.status == nil {
		return nil, false
	}
	return f.status, true
}

type testEnv struct {
	server        *httptest.Server
	users         *fakeUserStore
	conversations *fakeConversations
	chat          *fakeChat
	docs          *fakeDocs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		users:         newFakeUserStore(),
		conversations: newFakeConversations(),
		chat:          &fakeChat{reply: "hello!"},
		docs:          &fakeDocs{},
	}
	handler := NewAPIHandler(env.users, env.conversations, env.chat, env.docs)
	env.server = httptest.NewServer(NewRouter(handler))
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var b bytes.Buffer
	_, err := b.ReadFrom(resp.Body)
	require.NoError(t, err)
	return b.String()
}

func registerAndLogin(t *testing.T, env *testEnv, username, password string) string {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/register", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodPost, "/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/register", "", map[string]string{"username": "al", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "at least 3 characters")

	resp = env.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "at least 6 characters")

	resp = env.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "secret1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "alice", body["username"])
	assert.NotEmpty(t, body["user_id"])

	resp = env.do(t, http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "secret2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "already taken")
}

func TestLoginDoesNotLeakWhichFieldWasWrong(t *testing.T) {
	env := newTestEnv(t)
	registerAndLogin(t, env, "alice", "secret1")

	unknown := env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "nobody", "password": "secret1"})
	wrongPass := env.do(t, http.MethodPost, "/login", "", map[string]string{"username": "alice", "password": "wrong!"})

	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, wrongPass.StatusCode)
	assert.Equal(t, readBody(t, unknown), readBody(t, wrongPass))
}

func TestAuthMiddlewareDistinctMessages(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "Authorization header missing"},
		{"bad format", "Basic abc123", "Invalid authorization header format"},
		{"garbage token", "Bearer not-a-jwt", "Invalid token"},
		{"expired token", "Bearer " + expiredToken(t), "Token expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+"/conversations", nil)
			require.NoError(t, err)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Contains(t, readBody(t, resp), tc.message)
		})
	}
}

func expiredToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-48 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-24 * time.Hour)),
		},
		UserID:   "user-1",
		Username: "alice",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(config.AppConfig.JWTSecret))
	require.NoError(t, err)
	return token
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")

	resp := env.do(t, http.MethodPost, "/conversations", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody(t, resp)
	convID, _ := created["conversation_id"].(string)
	require.NotEmpty(t, convID)

	resp = env.do(t, http.MethodGet, "/conversations", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decodeBody(t, resp)
	require.Contains(t, listed, "conversations")
	assert.Len(t, listed["conversations"], 1)

	resp = env.do(t, http.MethodGet, "/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.do(t, http.MethodDelete, "/conversations/"+convID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "deleted")

	// Deleting again answers like it never existed.
	resp = env.do(t, http.MethodDelete, "/conversations/"+convID, token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestConversationHiddenFromOtherUsers(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := registerAndLogin(t, env, "alice", "secret1")
	bobToken := registerAndLogin(t, env, "bob", "secret2")

	resp := env.do(t, http.MethodPost, "/conversations", aliceToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID, _ := decodeBody(t, resp)["conversation_id"].(string)

	// Bob sees Alice's conversation exactly the way he'd see a missing one.
	resp = env.do(t, http.MethodGet, "/conversations/"+convID, bobToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	missing := env.do(t, http.MethodGet, "/conversations/no-such-id", bobToken, nil)
	assert.Equal(t, readBody(t, missing), readBody(t, resp))
}

func TestDeleteFailureIsServerError(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")
	env.conversations.deleteErr = errors.New("disk error")

	resp := env.do(t, http.MethodDelete, "/conversations/conv-1", token, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp.Body.Close()
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")

	resp := env.do(t, http.MethodPost, "/chat", token, map[string]string{"message": "hi there"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "hello!", body["response"])
	assert.Equal(t, "conv-new", body["conversation_id"])

	resp = env.do(t, http.MethodPost, "/chat", token, map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	env.chat.err = core.ErrConversationNotFound
	resp = env.do(t, http.MethodPost, "/chat", token, map[string]string{"message": "hi", "conversation_id": "foreign"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func uploadFile(t *testing.T, env *testEnv, token, convID, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/conversations/"+convID+"/documents", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestDocumentUploadAndStatus(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")

	resp := env.do(t, http.MethodPost, "/conversations", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID, _ := decodeBody(t, resp)["conversation_id"].(string)

	// No document indexed yet.
	resp = env.do(t, http.MethodGet, "/conversations/"+convID+"/documents", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = uploadFile(t, env, token, convID, "notes.txt", "some notes about tea")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "notes.txt", body["filename"])
	assert.EqualValues(t, 2, body["chunk_count"])

	resp = env.do(t, http.MethodGet, "/conversations/"+convID+"/documents", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody(t, resp)
	assert.Equal(t, "notes.txt", status["filename"])
}

func TestDocumentUploadRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")

	resp := env.do(t, http.MethodPost, "/conversations", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID, _ := decodeBody(t, resp)["conversation_id"].(string)

	env.docs.ingestErr = docindex.ErrUnsupportedType
	resp = uploadFile(t, env, token, convID, "image.png", "binary junk")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Unsupported file type")
}

func TestDocumentUploadTooLarge(t *testing.T) {
	env := newTestEnv(t)
	token := registerAndLogin(t, env, "alice", "secret1")

	resp := env.do(t, http.MethodPost, "/conversations", token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID, _ := decodeBody(t, resp)["conversation_id"].(string)

	resp = uploadFile(t, env, token, convID, "huge.txt", strings.Repeat("a", 11<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "too large")
}

func TestDocumentUploadForeignConversation(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := registerAndLogin(t, env, "alice", "secret1")
	bobToken := registerAndLogin(t, env, "bob", "secret2")

	resp := env.do(t, http.MethodPost, "/conversations", aliceToken, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	convID, _ := decodeBody(t, resp)["conversation_id"].(string)

	resp = uploadFile(t, env, bobToken, convID, "notes.txt", "hello")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(readBody(t, resp), "ok"))
}
