package model

import "time"

// Role заявленная роль участника
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
)

// User участник. ApprovedCounterparts индекс членства: id всех
// контрагентов с одобренным отношением.
type User struct {
	ID                   string    `json:"id"`
	Role                 Role      `json:"role"`
	DisplayName          string    `json:"display_name"`
	PhotoURL             string    `json:"photo_url"`
	TelegramID           int64     `json:"telegram_id"` // 0 = не привязан
	ApprovedCounterparts []string  `json:"approved_counterparts"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// IsInstructor проверяет, заявлен ли участник преподавателем
func (u *User) IsInstructor() bool {
	return u.Role == RoleInstructor
}

// IsStudent проверяет, заявлен ли участник учеником
func (u *User) IsStudent() bool {
	return u.Role == RoleStudent
}

// HasCounterpart проверяет, есть ли id в индексе членства
func (u *User) HasCounterpart(id string) bool {
	for _, c := range u.ApprovedCounterparts {
		if c == id {
			return true
		}
	}
	return false
}
