package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type User struct {
	ID         int64     `json:"id" db:"user_id"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Email      string    `json:"email" db:"email"`
	Phone      string    `json:"phone" db:"phone"`
	ReferredBy *int64    `json:"referred_by,omitempty" db:"referred_by"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

type CreateUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type ReferralRequest struct {
	ReferredUserID int64 `json:"referred_user_id"`
}

func (r *CreateUserRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" || strings.TrimSpace(r.LastName) == "" {
		return NewError(KindValidation, "", "first_name and last_name are required")
	}

	// Проверка email
	if !isValidEmail(r.Email) {
		return NewError(KindValidation, "", "invalid email format")
	}

	// Телефон хранится в колонке VARCHAR(20)
	if !isValidPhone(r.Phone) {
		return NewError(KindValidation, "", "invalid phone format")
	}

	return nil
}

func isValidEmail(email string) bool {
	re := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	return re.MatchString(email)
}

func isValidPhone(phone string) bool {
	re := regexp.MustCompile(`^[0-9+()\-. x]{5,20}$`)
	return re.MatchString(phone)
}

// FullName используется в уведомлениях
func (u *User) FullName() string {
	return fmt.Sprintf("%s %s", u.FirstName, u.LastName)
}
