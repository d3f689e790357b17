package model

import "errors"

// ErrInvalidParticipants участники не образуют пару: оба или ни один не
// преподаватель либо это один и тот же участник.
var ErrInvalidParticipants = errors.New("invalid participants")

// Pair упорядоченная пара ученик/преподаватель
type Pair struct {
	StudentID    string
	InstructorID string
}

// Has проверяет, входит ли id в пару
func (p Pair) Has(id string) bool {
	return id == p.StudentID || id == p.InstructorID
}

// Other возвращает контрагента id
func (p Pair) Other(id string) string {
	if id == p.StudentID {
		return p.InstructorID
	}
	return p.StudentID
}

// SideOf возвращает сторону id в паре или SideNone
func (p Pair) SideOf(id string) Side {
	switch id {
	case p.StudentID:
		return SideStudent
	case p.InstructorID:
		return SideInstructor
	}
	return SideNone
}

// CanonicalPair упорядочивает участников по заявленной роли. Ровно один
// должен быть преподавателем, другой учеником.
func CanonicalPair(x, y User) (Pair, error) {
	if x.ID == "" || y.ID == "" || x.ID == y.ID {
		return Pair{}, ErrInvalidParticipants
	}
	switch {
	case x.IsStudent() && y.IsInstructor():
		return Pair{StudentID: x.ID, InstructorID: y.ID}, nil
	case x.IsInstructor() && y.IsStudent():
		return Pair{StudentID: y.ID, InstructorID: x.ID}, nil
	}
	return Pair{}, ErrInvalidParticipants
}
