package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Типы кадров потока
const (
	FrameGate          = "gate"
	FrameMessages      = "messages"
	FrameConversations = "conversations"
	FrameSent          = "sent"
	FrameError         = "error"
	FrameSend          = "send"
)

type gateFrame struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

type messagesFrame struct {
	Type     string           `json:"type"`
	Messages []*model.Message `json:"messages"`
}

type conversationsFrame struct {
	Type          string                `json:"type"`
	Conversations []*model.Conversation `json:"conversations"`
}

type sentFrame struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type inbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newGateFrame(active bool) gateFrame {
	return gateFrame{Type: FrameGate, Active: active}
}

func newMessagesFrame(msgs []*model.Message) messagesFrame {
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return messagesFrame{Type: FrameMessages, Messages: msgs}
}

func newConversationsFrame(convs []*model.Conversation) conversationsFrame {
	if convs == nil {
		convs = []*model.Conversation{}
	}
	return conversationsFrame{Type: FrameConversations, Conversations: convs}
}

func newErrorFrame(err error) errorFrame {
	_, code := classify(err)
	msg := err.Error()
	if code == "internal" {
		msg = "internal error"
	}
	return errorFrame{Type: FrameError, Error: code, Message: msg}
}

// stream единственный писатель в соединение
type stream struct {
	conn   *websocket.Conn
	logger *zap.Logger
}

func (st *stream) write(f any) error {
	_ = st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteJSON(f)
}

func (st *stream) ping() error {
	return st.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// readLoop читает входящие кадры до ошибки чтения, затем отменяет ctx
func (st *stream) readLoop(ctx context.Context, cancel context.CancelFunc, handle func(inbound)) {
	defer cancel()

	st.conn.SetReadLimit(maxBodyBytes)
	_ = st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := st.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				st.logger.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		handle(in)
	}
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*stream, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return nil, false
	}
	return &stream{conn: conn, logger: s.logger}, true
}

// handleConversationStream отдаёт живой список переписок пользователя
func (s *Server) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	me := s.me(r)

	feed := s.Conversations.NewFeed()
	if err := feed.Watch(r.Context(), me.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	defer feed.Stop()

	st, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer st.conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// входящие кадры не ожидаются, читаем ради close и pong
	go st.readLoop(ctx, cancel, func(inbound) {})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := st.write(newConversationsFrame(feed.Items())); err != nil {
		return
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case convs := <-feed.Updates():
			err = st.write(newConversationsFrame(convs))
		case <-ticker.C:
			err = st.ping()
		}
		if err != nil {
			s.logger.Debug("WebSocket write failed", zap.String("user_id", me.ID), zap.Error(err))
			return
		}
	}
}

// handleChatStream открывает сессию переписки: живой гейт, живые сообщения
// и отправка через кадры {"type":"send"}
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	me := s.me(r)

	session, err := s.Chat.Open(r.Context(), me.ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer session.Close()

	st, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer st.conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	replies := make(chan any, 8)
	go st.readLoop(ctx, cancel, func(in inbound) {
		var reply any
		switch in.Type {
		case FrameSend:
			msg, err := session.Send(ctx, in.Text)
			if err != nil {
				reply = newErrorFrame(err)
			} else {
				reply = sentFrame{Type: FrameSent, Message: msg}
			}
		default:
			reply = newErrorFrame(fmt.Errorf("%w: unknown frame type %q", errBadRequest, in.Type))
		}

		select {
		case replies <- reply:
		case <-ctx.Done():
		}
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := st.write(newGateFrame(session.Gate().Active())); err != nil {
		return
	}
	if err := st.write(newMessagesFrame(session.Messages().Items())); err != nil {
		return
	}

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case active := <-session.Gate().Updates():
			err = st.write(newGateFrame(active))
		case msgs := <-session.Messages().Updates():
			err = st.write(newMessagesFrame(msgs))
		case reply := <-replies:
			err = st.write(reply)
		case <-ticker.C:
			err = st.ping()
		}
		if err != nil {
			s.logger.Debug("WebSocket write failed",
				zap.String("user_id", me.ID),
				zap.String("conversation_id", session.Conversation().ID),
				zap.Error(err),
			)
			return
		}
	}
}
