package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/service"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type counterpartRequest struct {
	CounterpartID string `json:"counterpart_id"`
}

type profileRequest struct {
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

type telegramLinkResponse struct {
	Code      string    `json:"code"`
	Command   string    `json:"command"`
	ExpiresAt time.Time `json:"expires_at"`
}

type textRequest struct {
	Text string `json:"text"`
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) me(r *http.Request) *model.User {
	user, _ := UserFromContext(r.Context())
	return user
}

func (s *Server) counterpart(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req counterpartRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return "", false
	}
	if strings.TrimSpace(req.CounterpartID) == "" {
		s.writeError(w, r, fmt.Errorf("%w: counterpart_id is required", errBadRequest))
		return "", false
	}
	return req.CounterpartID, true
}

// ============ Профиль ============

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.me(r))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	me := s.me(r)
	user, err := s.Users.SyncProfile(r.Context(), &model.User{
		ID:          me.ID,
		Role:        me.Role,
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleTelegramLink выдаёт код, который пользователь отправляет боту
func (s *Server) handleTelegramLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.Users.IssueTelegramLinkCode(r.Context(), s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, telegramLinkResponse{
		Code:      link.Code,
		Command:   "/start " + link.Code,
		ExpiresAt: link.ExpiresAt,
	})
}

func (s *Server) handleCounterparts(w http.ResponseWriter, r *http.Request) {
	users, err := s.Membership.Counterparts(r.Context(), s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		limit = n
	}

	notifications, err := s.Notifications.ListByRecipient(r.Context(), s.me(r).ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// ============ Отношения ============

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	var statuses []model.RelationshipStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, model.RelationshipStatus(strings.TrimSpace(part)))
		}
	}

	rels, err := s.Relationships.List(r.Context(), s.me(r).ID, statuses...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	rel, err := s.Relationships.SendRequest(r.Context(), s.me(r).ID, counterpartID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func (s *Server) handleIncomingRequests(w http.ResponseWriter, r *http.Request) {
	rels, err := s.Relationships.IncomingRequests(r.Context(), s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleOutgoingRequests(w http.ResponseWriter, r *http.Request) {
	rels, err := s.Relationships.OutgoingRequests(r.Context(), s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleGetRelationship(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Relationships.Get(r.Context(), s.me(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Relationships.Approve(r.Context(), s.me(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	rel, err := s.Relationships.Deny(r.Context(), s.me(r).ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Relationships.Cancel(r.Context(), s.me(r).ID, mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	rel, err := s.Relationships.Block(r.Context(), s.me(r).ID, counterpartID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleUnblock(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	if err := s.Relationships.Unblock(r.Context(), s.me(r).ID, counterpartID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	if err := s.Relationships.Remove(r.Context(), s.me(r).ID, counterpartID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	rel, err := s.Relationships.Complete(r.Context(), s.me(r).ID, counterpartID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	active, err := s.Gate.Check(r.Context(), s.me(r).ID, mux.Vars(r)["counterpart_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

// ============ Переписки ============

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.Conversations.List(r.Context(), s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (s *Server) handleGetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	counterpartID, ok := s.counterpart(w, r)
	if !ok {
		return
	}

	conv, created, err := s.Conversations.GetOrCreate(r.Context(), s.me(r).ID, counterpartID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, conv)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Messages.List(r.Context(), mux.Vars(r)["id"], s.me(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleSendMessage отправляет сообщение вне открытой сессии: гейт
// проверяется разово
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	me := s.me(r)
	conv, err := s.Conversations.Get(r.Context(), me.ID, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	active, err := s.Gate.Check(r.Context(), me.ID, conv.Counterpart(me.ID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg, err := s.Messages.Send(r.Context(), service.StaticGate(active), conv.ID, me.ID, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	vars := mux.Vars(r)
	msg, err := s.Messages.Update(r.Context(), vars["id"], s.me(r).ID, vars["message_id"], req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Messages.Delete(r.Context(), vars["id"], s.me(r).ID, vars["message_id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
