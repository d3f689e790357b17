package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository"
	"github.com/Freeeeeet/tutor_chat/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*model.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, notification *model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) types(recipientID string) []model.NotificationType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []model.NotificationType
	for _, sent := range n.sent {
		if sent.RecipientID == recipientID {
			out = append(out, sent.Type)
		}
	}
	return out
}

type fixture struct {
	ctx   context.Context
	store *memory.Store

	userRepo       *repository.UserRepository
	relRepo        *repository.RelationshipRepository
	membershipRepo *repository.MembershipRepository

	notifier      *recordingNotifier
	users         *UserService
	membership    *MembershipService
	relationships *RelationshipService
	gate          *GateService
	conversations *ConversationService
	messages      *MessageService
	chat          *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	s := memory.New(memory.WithLogger(logger))

	userRepo := repository.NewUserRepository(s)
	relRepo := repository.NewRelationshipRepository(s)
	membershipRepo := repository.NewMembershipRepository(s)
	convRepo := repository.NewConversationRepository(s)
	msgRepo := repository.NewMessageRepository(s)

	notifier := &recordingNotifier{}
	membership := NewMembershipService(membershipRepo, relRepo, userRepo, logger)
	gate := NewGateService(relRepo, userRepo, logger)
	conversations := NewConversationService(convRepo, userRepo, gate, logger)
	messages := NewMessageService(msgRepo, convRepo, logger)

	return &fixture{
		ctx:            context.Background(),
		store:          s,
		userRepo:       userRepo,
		relRepo:        relRepo,
		membershipRepo: membershipRepo,
		notifier:       notifier,
		users:          NewUserService(userRepo, repository.NewTelegramLinkRepository(s), logger),
		membership:     membership,
		relationships:  NewRelationshipService(relRepo, userRepo, membership, notifier, logger),
		gate:           gate,
		conversations:  conversations,
		messages:       messages,
		chat:           NewChatService(conversations, messages, gate, logger),
	}
}

func (f *fixture) student(t *testing.T, id string) *model.User {
	t.Helper()
	return f.addUser(t, id, model.RoleStudent)
}

func (f *fixture) instructor(t *testing.T, id string) *model.User {
	t.Helper()
	return f.addUser(t, id, model.RoleInstructor)
}

func (f *fixture) addUser(t *testing.T, id string, role model.Role) *model.User {
	t.Helper()
	user, err := f.users.SyncProfile(f.ctx, &model.User{ID: id, Role: role, DisplayName: "User " + id})
	require.NoError(t, err)
	return user
}

// approved проводит пару через заявку и одобрение
func (f *fixture) approved(t *testing.T, studentID, instructorID string) *model.Relationship {
	t.Helper()
	rel, err := f.relationships.SendRequest(f.ctx, studentID, instructorID)
	require.NoError(t, err)
	rel, err = f.relationships.Approve(f.ctx, instructorID, rel.ID)
	require.NoError(t, err)
	return rel
}

func (f *fixture) counterparts(t *testing.T, userID string) []string {
	t.Helper()
	ids, err := f.membershipRepo.Get(f.ctx, userID)
	require.NoError(t, err)
	return ids
}

func (f *fixture) records(t *testing.T, studentID, instructorID string) []*model.Relationship {
	t.Helper()
	rels, err := f.relRepo.FindByPair(f.ctx, model.Pair{StudentID: studentID, InstructorID: instructorID})
	require.NoError(t, err)
	return rels
}
