package models

import (
	"fmt"
	"time"
)

type User struct {
	ID             uint64    `json:"id" dynamodbav:"id"`
	Name           string    `json:"name" dynamodbav:"name"`
	Email          string    `json:"email" dynamodbav:"email"`
	PasswordDigest string    `json:"-" dynamodbav:"password_digest"`
	AvatarURL      string    `json:"avatar_url,omitempty" dynamodbav:"avatar_url,omitempty"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.Email
}

func (u *User) GetSK() string {
	return "METADATA"
}

// GetIDPK is the partition key of the id-to-email pointer item that backs
// lookups by user id.
func (u *User) GetIDPK() string {
	return fmt.Sprintf("USERID#%d", u.ID)
}
