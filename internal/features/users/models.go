// Package users — справочник пользователей, которых обходит сверка.
package users

// User — пользователь системы очков.
type User struct {
	ID       string `json:"id"`       // Идентификатор (UUID/текст)
	Username string `json:"username"` // Может быть пустым
}

