package models

// UserModel is the case-manager (owner) account.
type UserModel struct {
	Base
	Username string `json:"username" gorm:"uniqueIndex;not null"`
	Name     string `json:"name"`
	Password string `json:"-"        gorm:"not null"` // bcrypt hash
	Mail     string `json:"mail"`
}

func (UserModel) TableName() string { return "users" }
