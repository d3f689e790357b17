package model

import (
	"fmt"
	"time"
)

// RelationshipStatus состояние отношения ученика и преподавателя
type RelationshipStatus string

const (
	RelationshipPending   RelationshipStatus = "pending"
	RelationshipApproved  RelationshipStatus = "approved"
	RelationshipDenied    RelationshipStatus = "denied"
	RelationshipBlocked   RelationshipStatus = "blocked"
	RelationshipCompleted RelationshipStatus = "completed" // завершено любой из сторон
)

// Side сторона пары, совершившая действие
type Side string

const (
	SideNone       Side = ""
	SideStudent    Side = "student"
	SideInstructor Side = "instructor"
)

// Relationship разрешение на общение ученика и преподавателя
type Relationship struct {
	ID           string             `json:"id"`
	StudentID    string             `json:"student_id"`
	InstructorID string             `json:"instructor_id"`
	Status       RelationshipStatus `json:"status"`
	BlockedBy    Side               `json:"blocked_by"`
	RequestedBy  Side               `json:"requested_by"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// RelationshipID детерминированный id записи для пары
func RelationshipID(p Pair) string {
	return fmt.Sprintf("rel_%s_%s", p.StudentID, p.InstructorID)
}

// Pair возвращает каноническую пару записи
func (r *Relationship) Pair() Pair {
	return Pair{StudentID: r.StudentID, InstructorID: r.InstructorID}
}

// IsPending проверяет, ожидает ли заявка решения
func (r *Relationship) IsPending() bool {
	return r.Status == RelationshipPending
}

// IsApproved проверяет, одобрено ли отношение
func (r *Relationship) IsApproved() bool {
	return r.Status == RelationshipApproved
}

// IsBlocked проверяет, заблокировано ли отношение
func (r *Relationship) IsBlocked() bool {
	return r.Status == RelationshipBlocked
}

// ClosesGate сообщает, запрещает ли запись переписку пары
func (r *Relationship) ClosesGate() bool {
	return r.Status == RelationshipBlocked || r.Status == RelationshipDenied
}

// GateClosingStatuses статусы, запрещающие переписку
var GateClosingStatuses = []RelationshipStatus{RelationshipBlocked, RelationshipDenied}
