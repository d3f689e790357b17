package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/notify"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fixture struct {
	t      *testing.T
	auth   *Authenticator
	users  *service.UserService
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	s := memory.New()

	userRepo := repository.NewUserRepository(s)
	relRepo := repository.NewRelationshipRepository(s)
	convRepo := repository.NewConversationRepository(s)
	msgRepo := repository.NewMessageRepository(s)
	notificationRepo := repository.NewNotificationRepository(s)

	membership := service.NewMembershipService(repository.NewMembershipRepository(s), relRepo, userRepo, logger)
	gate := service.NewGateService(relRepo, userRepo, logger)
	conversations := service.NewConversationService(convRepo, userRepo, gate, logger)
	messages := service.NewMessageService(msgRepo, convRepo, logger)

	users := service.NewUserService(userRepo, repository.NewTelegramLinkRepository(s), logger)

	auth := NewAuthenticator(testSecret)
	srv := NewServer(Deps{
		Auth:          auth,
		Users:         users,
		Relationships: service.NewRelationshipService(relRepo, userRepo, membership, notify.NewStoreNotifier(notificationRepo, logger), logger),
		Membership:    membership,
		Gate:          gate,
		Conversations: conversations,
		Messages:      messages,
		Chat:          service.NewChatService(conversations, messages, gate, logger),
		Notifications: notificationRepo,
	}, logger)

	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	return &fixture{t: t, auth: auth, users: users, server: server}
}

func (f *fixture) token(id string, role model.Role) string {
	f.t.Helper()
	token, err := f.auth.Issue(&model.User{ID: id, Role: role, DisplayName: "User " + id}, time.Hour)
	require.NoError(f.t, err)
	return token
}

// do выполняет запрос и раскладывает JSON-ответ в out, если он задан
func (f *fixture) do(method, path, token string, body any, out any) int {
	f.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(f.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.server.Client().Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(f.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *fixture) dial(path, token string) *websocket.Conn {
	f.t.Helper()

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(f.t, err)
	resp.Body.Close()
	f.t.Cleanup(func() { conn.Close() })
	return conn
}

type wsFrame struct {
	Type     string           `json:"type"`
	Active   bool             `json:"active"`
	Messages []*model.Message `json:"messages"`
	Message  *model.Message   `json:"message"`
	Error    string           `json:"error"`
}

// readUntil читает кадры, пока match не вернёт true
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var fr wsFrame
		require.NoError(t, conn.ReadJSON(&fr))
		if match(fr) {
			return fr
		}
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequiresValidToken(t *testing.T) {
	f := newFixture(t)

	var body errorBody
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/me", "", nil, &body))
	assert.Equal(t, "not_authenticated", body.Error)

	other := NewAuthenticator("other-secret")
	forged, err := other.Issue(&model.User{ID: "s1", Role: model.RoleStudent}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/me", forged, nil, nil))

	expired, err := f.auth.Issue(&model.User{ID: "s1", Role: model.RoleStudent}, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/me", expired, nil, nil))
}

func TestFirstRequestCreatesProfile(t *testing.T) {
	f := newFixture(t)
	token := f.token("s1", model.RoleStudent)

	var me model.User
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", token, nil, &me))
	assert.Equal(t, "s1", me.ID)
	assert.Equal(t, model.RoleStudent, me.Role)
	assert.Equal(t, "User s1", me.DisplayName)

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/v1/me", token,
		profileRequest{DisplayName: "Маша"}, &me))
	assert.Equal(t, "Маша", me.DisplayName)
	// роль берётся только из токена
	assert.Equal(t, model.RoleStudent, me.Role)
}

func TestRelationshipLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	// профиль инструктора появляется при первом входе
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))

	var rel model.Relationship
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/relationships/requests", student,
		counterpartRequest{CounterpartID: "i1"}, &rel))
	assert.Equal(t, model.RelationshipPending, rel.Status)
	assert.Equal(t, model.SideStudent, rel.RequestedBy)

	var body errorBody
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/v1/relationships/requests", student,
		counterpartRequest{CounterpartID: "i1"}, &body))
	assert.Equal(t, "already_pending", body.Error)

	var incoming []*model.Relationship
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/relationships/requests/incoming", instructor, nil, &incoming))
	require.Len(t, incoming, 1)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/relationships/"+rel.ID+"/approve", student, nil, &body))
	assert.Equal(t, "not_recipient", body.Error)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/relationships/"+rel.ID+"/approve", instructor, nil, &rel))
	assert.Equal(t, model.RelationshipApproved, rel.Status)

	var counterparts []*model.User
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me/counterparts", student, nil, &counterparts))
	require.Len(t, counterparts, 1)
	assert.Equal(t, "i1", counterparts[0].ID)

	var notifications []*model.Notification
	require.Eventually(t, func() bool {
		f.do(http.MethodGet, "/api/v1/me/notifications", student, nil, &notifications)
		return len(notifications) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, model.NotificationRequestApproved, notifications[0].Type)

	var gate map[string]bool
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/gate/i1", student, nil, &gate))
	assert.True(t, gate["active"])

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/relationships/block", instructor,
		counterpartRequest{CounterpartID: "s1"}, &rel))
	assert.Equal(t, model.RelationshipBlocked, rel.Status)

	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/gate/i1", student, nil, &gate))
	assert.False(t, gate["active"])

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/relationships/unblock", student,
		counterpartRequest{CounterpartID: "i1"}, &body))
	assert.Equal(t, "not_blocker", body.Error)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/v1/relationships/unblock", instructor,
		counterpartRequest{CounterpartID: "s1"}, nil))

	var all []*model.Relationship
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/relationships", student, nil, &all))
	assert.Empty(t, all)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing counterpart", http.MethodPost, "/api/v1/relationships/requests", map[string]string{}, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodPost, "/api/v1/relationships/requests", map[string]string{"to": "i1"}, http.StatusBadRequest, "bad_request"},
		{"self request", http.MethodPost, "/api/v1/relationships/requests", counterpartRequest{CounterpartID: "s1"}, http.StatusBadRequest, "invalid_participants"},
		{"unknown counterpart", http.MethodPost, "/api/v1/relationships/requests", counterpartRequest{CounterpartID: "ghost"}, http.StatusNotFound, "user_not_found"},
		{"unknown relationship", http.MethodGet, "/api/v1/relationships/nope", nil, http.StatusNotFound, "request_not_found"},
		{"bad limit", http.MethodGet, "/api/v1/me/notifications?limit=x", nil, http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			assert.Equal(t, tt.status, f.do(tt.method, tt.path, student, tt.body, &body))
			assert.Equal(t, tt.code, body.Error)
		})
	}
}

func TestConversationAndMessagesOverHTTP(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations", student,
		counterpartRequest{CounterpartID: "i1"}, &conv))
	var again model.Conversation
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/conversations", instructor,
		counterpartRequest{CounterpartID: "s1"}, &again))
	assert.Equal(t, conv.ID, again.ID)

	var msg model.Message
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", student,
		textRequest{Text: "Здравствуйте"}, &msg))
	assert.Equal(t, "s1", msg.SenderID)

	var body errorBody
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPatch, "/api/v1/conversations/"+conv.ID+"/messages/"+msg.ID, instructor,
		textRequest{Text: "чужое"}, &body))
	assert.Equal(t, "not_sender", body.Error)

	require.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/api/v1/conversations/"+conv.ID+"/messages/"+msg.ID, student,
		textRequest{Text: "Добрый день"}, &msg))
	assert.True(t, msg.IsEdited)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/relationships/block", instructor,
		counterpartRequest{CounterpartID: "s1"}, nil))

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", student,
		textRequest{Text: "Вы тут?"}, &body))
	assert.Equal(t, "blocked", body.Error)

	var msgs []*model.Message
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", instructor, nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Добрый день", msgs[0].Text)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/v1/conversations/"+conv.ID+"/messages/"+msg.ID, student, nil, nil))

	var convs []*model.Conversation
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/conversations", instructor, nil, &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "Добрый день", convs[0].LastMessage)
}

func TestChatStreamFollowsGate(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations", student,
		counterpartRequest{CounterpartID: "i1"}, &conv))

	conn := f.dial("/ws/conversations/"+conv.ID, student)
	fr := readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == FrameGate })
	assert.True(t, fr.Active)

	require.NoError(t, conn.WriteJSON(inbound{Type: FrameSend, Text: "Hi"}))
	fr = readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == FrameSent })
	assert.Equal(t, "Hi", fr.Message.Text)
	readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == FrameMessages && len(fr.Messages) == 1 })

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/relationships/block", instructor,
		counterpartRequest{CounterpartID: "s1"}, nil))
	readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == FrameGate && !fr.Active })

	require.NoError(t, conn.WriteJSON(inbound{Type: FrameSend, Text: "Are you there?"}))
	fr = readUntil(t, conn, func(fr wsFrame) bool { return fr.Type == FrameError })
	assert.Equal(t, "blocked", fr.Error)
}

func TestChatStreamRejectsOutsider(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	outsider := f.token("s2", model.RoleStudent)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", outsider, nil, nil))

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations", student,
		counterpartRequest{CounterpartID: "i1"}, &conv))

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/conversations/" + conv.ID + "?access_token=" + outsider
	_, resp, err := websocket.DefaultDialer.DialContext(context.Background(), url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConversationStream(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))

	conn := f.dial("/ws/conversations", student)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations", instructor,
		counterpartRequest{CounterpartID: "s1"}, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var fr conversationsFrame
		require.NoError(t, conn.ReadJSON(&fr))
		require.Equal(t, FrameConversations, fr.Type)
		if len(fr.Conversations) == 1 {
			assert.Contains(t, fr.Conversations[0].ParticipantIDs, "s1")
			return
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	logger := zap.NewNop()
	srv := NewServer(Deps{AllowedOrigin: "https://app.example.com"}, logger)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/relationships/requests", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestChatStreamStartsClosedOnBlockedPair(t *testing.T) {
	f := newFixture(t)
	student := f.token("s1", model.RoleStudent)
	instructor := f.token("i1", model.RoleInstructor)
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", instructor, nil, nil))

	var conv model.Conversation
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/conversations", student,
		counterpartRequest{CounterpartID: "i1"}, &conv))
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/v1/relationships/block", instructor,
		counterpartRequest{CounterpartID: "s1"}, nil))

	conn := f.dial("/ws/conversations/"+conv.ID, student)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first wsFrame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, FrameGate, first.Type)
	assert.False(t, first.Active)
}

func TestProfileCannotClaimTelegramID(t *testing.T) {
	f := newFixture(t)
	token := f.token("s1", model.RoleStudent)

	var body errorBody
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/v1/me", token,
		map[string]any{"display_name": "X", "telegram_id": 1001}, &body))
	assert.Equal(t, "bad_request", body.Error)

	var me model.User
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", token, nil, &me))
	assert.Zero(t, me.TelegramID)
}

func TestTelegramLinkCode(t *testing.T) {
	f := newFixture(t)
	token := f.token("s1", model.RoleStudent)

	var link telegramLinkResponse
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/v1/me/telegram-link", token, nil, &link))
	assert.NotEmpty(t, link.Code)
	assert.Equal(t, "/start "+link.Code, link.Command)
	assert.True(t, link.ExpiresAt.After(time.Now()))

	user, err := f.users.LinkTelegram(context.Background(), link.Code, 555)
	require.NoError(t, err)
	assert.Equal(t, "s1", user.ID)

	var me model.User
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/me", token, nil, &me))
	assert.Equal(t, int64(555), me.TelegramID)
}
