package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Freeeeeet/tutor_chat/internal/service"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{service.ErrAlreadyPending, http.StatusConflict, "already_pending"},
	{service.ErrAlreadyApproved, http.StatusConflict, "already_approved"},
	{service.ErrRequestNotPending, http.StatusConflict, "request_not_pending"},
	{service.ErrNotApproved, http.StatusConflict, "not_approved"},
	{service.ErrBlocked, http.StatusForbidden, "blocked"},
	{service.ErrNotBlocker, http.StatusForbidden, "not_blocker"},
	{service.ErrNotParticipant, http.StatusForbidden, "not_participant"},
	{service.ErrNotRecipient, http.StatusForbidden, "not_recipient"},
	{service.ErrNotRequester, http.StatusForbidden, "not_requester"},
	{service.ErrNotSender, http.StatusForbidden, "not_sender"},
	{service.ErrInvalidParticipants, http.StatusBadRequest, "invalid_participants"},
	{service.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
	{service.ErrLinkCodeInvalid, http.StatusBadRequest, "link_code_invalid"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{service.ErrNotAuthenticated, http.StatusUnauthorized, "not_authenticated"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{service.ErrRequestNotFound, http.StatusNotFound, "request_not_found"},
	{service.ErrConversationNotFound, http.StatusNotFound, "conversation_not_found"},
	{service.ErrMessageNotFound, http.StatusNotFound, "message_not_found"},
}

// classify возвращает HTTP-статус и код ошибки
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal error"
	}

	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
