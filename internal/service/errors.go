package service

import (
	"errors"

	"github.com/Freeeeeet/tutor_chat/internal/model"
)

// Доменные ошибки, которые показываются пользователю
var (
	ErrAlreadyPending      = errors.New("request already pending")
	ErrAlreadyApproved     = errors.New("relationship already approved")
	ErrBlocked             = errors.New("relationship is blocked")
	ErrInvalidParticipants = model.ErrInvalidParticipants
	ErrNotAuthenticated    = errors.New("not authenticated")

	ErrRequestNotFound      = errors.New("request not found")
	ErrRequestNotPending    = errors.New("request is not pending")
	ErrNotRecipient         = errors.New("only the request recipient can respond")
	ErrNotBlocker           = errors.New("only the blocking side can unblock")
	ErrNotApproved          = errors.New("relationship is not approved")
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotParticipant       = errors.New("not a participant")
	ErrNotSender            = errors.New("only the sender can change a message")
	ErrNotRequester         = errors.New("only the requesting side can cancel")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrLinkCodeInvalid      = errors.New("telegram link code is invalid or expired")
)
