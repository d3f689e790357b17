// Package httpapi открывает сервисы отношений и сообщений через REST
// и WebSocket.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// NotificationLister выдаёт сохранённые уведомления получателя
type NotificationLister interface {
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*model.Notification, error)
}

// Deps сервисы, которые обслуживает API
type Deps struct {
	Auth          *Authenticator
	Users         *service.UserService
	Relationships *service.RelationshipService
	Membership    *service.MembershipService
	Gate          *service.GateService
	Conversations *service.ConversationService
	Messages      *service.MessageService
	Chat          *service.ChatService
	Notifications NotificationLister
	// AllowedOrigin для CORS, пустой отключает CORS-заголовки
	AllowedOrigin string
}

type Server struct {
	Deps
	upgrader websocket.Upgrader
	handler  http.Handler
	logger   *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		Deps:   deps,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.handler = s.routes()
	if s.AllowedOrigin != "" {
		// preflight должен отвечать до маршрутизации по методам
		s.handler = s.cors(s.handler)
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/me", s.handleGetMe).Methods(http.MethodGet)
	api.HandleFunc("/me", s.handleUpdateMe).Methods(http.MethodPut)
	api.HandleFunc("/me/telegram-link", s.handleTelegramLink).Methods(http.MethodPost)
	api.HandleFunc("/me/counterparts", s.handleCounterparts).Methods(http.MethodGet)
	api.HandleFunc("/me/notifications", s.handleNotifications).Methods(http.MethodGet)

	api.HandleFunc("/relationships", s.handleListRelationships).Methods(http.MethodGet)
	api.HandleFunc("/relationships/requests", s.handleSendRequest).Methods(http.MethodPost)
	api.HandleFunc("/relationships/requests/incoming", s.handleIncomingRequests).Methods(http.MethodGet)
	api.HandleFunc("/relationships/requests/outgoing", s.handleOutgoingRequests).Methods(http.MethodGet)
	api.HandleFunc("/relationships/block", s.handleBlock).Methods(http.MethodPost)
	api.HandleFunc("/relationships/unblock", s.handleUnblock).Methods(http.MethodPost)
	api.HandleFunc("/relationships/remove", s.handleRemove).Methods(http.MethodPost)
	api.HandleFunc("/relationships/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/relationships/{id}", s.handleGetRelationship).Methods(http.MethodGet)
	api.HandleFunc("/relationships/{id}", s.handleCancel).Methods(http.MethodDelete)
	api.HandleFunc("/relationships/{id}/approve", s.handleApprove).Methods(http.MethodPost)
	api.HandleFunc("/relationships/{id}/deny", s.handleDeny).Methods(http.MethodPost)

	api.HandleFunc("/gate/{counterpart_id}", s.handleGate).Methods(http.MethodGet)

	api.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.handleGetOrCreateConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages/{message_id}", s.handleUpdateMessage).Methods(http.MethodPatch)
	api.HandleFunc("/conversations/{id}/messages/{message_id}", s.handleDeleteMessage).Methods(http.MethodDelete)

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(s.authenticate)
	ws.HandleFunc("/conversations", s.handleConversationStream)
	ws.HandleFunc("/conversations/{id}", s.handleChatStream)

	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// HTTPServer собирает http.Server с таймаутами на чтение заголовков
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.AllowedOrigin == "*" || origin == s.AllowedOrigin {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
