package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/tutor_chat/internal/model"
	"github.com/Freeeeeet/tutor_chat/internal/repository/base"
	"github.com/Freeeeeet/tutor_chat/internal/store"
)

const RelationshipsCollection = "relationships"

type RelationshipRepository struct {
	*base.Repository
}

func NewRelationshipRepository(s store.Store) *RelationshipRepository {
	return &RelationshipRepository{Repository: base.NewRepository(s)}
}

// RelationshipFilter фильтр для выборки отношений; пустые поля не участвуют
type RelationshipFilter struct {
	StudentID    string
	InstructorID string
	Statuses     []model.RelationshipStatus
}

func relationshipFromDoc(doc store.Document) *model.Relationship {
	return &model.Relationship{
		ID:           doc.ID,
		StudentID:    base.String(doc.Data, "student_id"),
		InstructorID: base.String(doc.Data, "instructor_id"),
		Status:       model.RelationshipStatus(base.String(doc.Data, "status")),
		BlockedBy:    model.Side(base.String(doc.Data, "blocked_by")),
		RequestedBy:  model.Side(base.String(doc.Data, "requested_by")),
		CreatedAt:    base.Time(doc.Data, "created_at"),
		UpdatedAt:    base.Time(doc.Data, "updated_at"),
	}
}

func relationshipsFromDocs(docs []store.Document) []*model.Relationship {
	rels := make([]*model.Relationship, 0, len(docs))
	for _, doc := range docs {
		rels = append(rels, relationshipFromDoc(doc))
	}
	return rels
}

func statusValues(statuses []model.RelationshipStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// Put создаёт или перезаписывает запись отношения, время создания ставит хранилище
func (r *RelationshipRepository) Put(ctx context.Context, rel *model.Relationship) error {
	if rel.ID == "" {
		return fmt.Errorf("relationship id is required")
	}

	err := r.Store().Set(ctx, RelationshipsCollection, rel.ID, map[string]any{
		"student_id":    rel.StudentID,
		"instructor_id": rel.InstructorID,
		"status":        string(rel.Status),
		"blocked_by":    string(rel.BlockedBy),
		"requested_by":  string(rel.RequestedBy),
		"created_at":    store.ServerTimestamp,
		"updated_at":    store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("put relationship: %w", err)
	}

	return nil
}

// GetByID получает запись по ID
func (r *RelationshipRepository) GetByID(ctx context.Context, id string) (*model.Relationship, error) {
	doc, err := r.Store().Get(ctx, RelationshipsCollection, id)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get relationship: %w", err)
	}

	return relationshipFromDoc(doc), nil
}

// UpdateStatus обновляет статус записи и сторону, наложившую блокировку
func (r *RelationshipRepository) UpdateStatus(ctx context.Context, id string, status model.RelationshipStatus, blockedBy model.Side) error {
	err := r.Store().Update(ctx, RelationshipsCollection, id, map[string]any{
		"status":     string(status),
		"blocked_by": string(blockedBy),
		"updated_at": store.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("update relationship status: %w", err)
	}

	return nil
}

// Delete удаляет запись по ID
func (r *RelationshipRepository) Delete(ctx context.Context, id string) error {
	if err := r.Store().Delete(ctx, RelationshipsCollection, id); err != nil {
		return fmt.Errorf("delete relationship: %w", err)
	}

	return nil
}

func (r *RelationshipRepository) query(filter RelationshipFilter) store.Query {
	q := store.Collection(RelationshipsCollection)
	if filter.StudentID != "" {
		q = q.Where("student_id", store.OpEqual, filter.StudentID)
	}
	if filter.InstructorID != "" {
		q = q.Where("instructor_id", store.OpEqual, filter.InstructorID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status", store.OpIn, statusValues(filter.Statuses))
	}
	return q.OrderBy("created_at", store.Desc)
}

// List получает записи по фильтру, новые первыми
func (r *RelationshipRepository) List(ctx context.Context, filter RelationshipFilter) ([]*model.Relationship, error) {
	docs, err := r.Store().Query(ctx, r.query(filter))
	if err != nil {
		return nil, fmt.Errorf("list relationships: %w", err)
	}

	return relationshipsFromDocs(docs), nil
}

// FindByPair получает все записи пары (их может быть несколько из-за старых дубликатов)
func (r *RelationshipRepository) FindByPair(ctx context.Context, pair model.Pair) ([]*model.Relationship, error) {
	return r.List(ctx, RelationshipFilter{StudentID: pair.StudentID, InstructorID: pair.InstructorID})
}

// FindByPairAndStatuses получает записи пары с указанными статусами
func (r *RelationshipRepository) FindByPairAndStatuses(ctx context.Context, pair model.Pair, statuses []model.RelationshipStatus) ([]*model.Relationship, error) {
	return r.List(ctx, RelationshipFilter{
		StudentID:    pair.StudentID,
		InstructorID: pair.InstructorID,
		Statuses:     statuses,
	})
}

// WatchPairStatuses подписывается на записи пары с указанными статусами
func (r *RelationshipRepository) WatchPairStatuses(
	ctx context.Context,
	pair model.Pair,
	statuses []model.RelationshipStatus,
	fn func([]*model.Relationship, error),
) (store.Subscription, error) {
	q := r.query(RelationshipFilter{
		StudentID:    pair.StudentID,
		InstructorID: pair.InstructorID,
		Statuses:     statuses,
	})

	sub, err := r.Store().Subscribe(ctx, q, func(docs []store.Document, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		fn(relationshipsFromDocs(docs), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("watch relationships: %w", err)
	}

	return sub, nil
}
