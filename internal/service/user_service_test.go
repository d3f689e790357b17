package service

import (
	"strings"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncProfileKeepsTelegramLink(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")

	code, err := f.users.IssueTelegramLinkCode(f.ctx, "s1")
	require.NoError(t, err)
	_, err = f.users.LinkTelegram(f.ctx, code.Code, 1001)
	require.NoError(t, err)

	// личность от провайдера входа не может переписать привязку
	user, err := f.users.SyncProfile(f.ctx, &model.User{ID: "s1", Role: model.RoleStudent, DisplayName: "Маша", TelegramID: 4242})
	require.NoError(t, err)
	assert.Equal(t, "Маша", user.DisplayName)
	assert.Equal(t, int64(1001), user.TelegramID)

	owner, err := f.users.GetByTelegramID(f.ctx, 4242)
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestLinkTelegramCodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")

	code, err := f.users.IssueTelegramLinkCode(f.ctx, "s1")
	require.NoError(t, err)

	user, err := f.users.LinkTelegram(f.ctx, code.Code, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1001), user.TelegramID)

	_, err = f.users.LinkTelegram(f.ctx, code.Code, 2002)
	assert.ErrorIs(t, err, ErrLinkCodeInvalid)

	user, err = f.users.GetByID(f.ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1001), user.TelegramID)
}

func TestLinkTelegramRejectsBadCodes(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")

	code, err := f.users.IssueTelegramLinkCode(f.ctx, "s1")
	require.NoError(t, err)

	tests := []struct {
		name string
		code string
		tgID int64
	}{
		{"empty", "", 1001},
		{"unknown", "NOSUCHCODE", 1001},
		{"no telegram id", code.Code, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.LinkTelegram(f.ctx, tt.code, tt.tgID)
			assert.ErrorIs(t, err, ErrLinkCodeInvalid)
		})
	}

	_, err = f.users.IssueTelegramLinkCode(f.ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLinkTelegramRejectsExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")

	now := time.Now()
	f.users.now = func() time.Time { return now }
	code, err := f.users.IssueTelegramLinkCode(f.ctx, "s1")
	require.NoError(t, err)

	f.users.now = func() time.Time { return now.Add(TelegramLinkTTL + time.Second) }
	_, err = f.users.LinkTelegram(f.ctx, code.Code, 1001)
	assert.ErrorIs(t, err, ErrLinkCodeInvalid)
}

func TestLinkTelegramMovesAccountBetweenProfiles(t *testing.T) {
	f := newFixture(t)
	f.student(t, "s1")
	f.instructor(t, "i1")

	first, err := f.users.IssueTelegramLinkCode(f.ctx, "s1")
	require.NoError(t, err)
	_, err = f.users.LinkTelegram(f.ctx, first.Code, 1001)
	require.NoError(t, err)

	second, err := f.users.IssueTelegramLinkCode(f.ctx, "i1")
	require.NoError(t, err)
	_, err = f.users.LinkTelegram(f.ctx, strings.ToLower(second.Code), 1001)
	require.NoError(t, err)

	owner, err := f.users.GetByTelegramID(f.ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "i1", owner.ID)

	previous, err := f.users.GetByID(f.ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, previous.TelegramID)
}
