package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/freightpay/internal/authorization"
	"github.com/smallbiznis/freightpay/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user_not_found")

// User is the marketplace account record.
type User struct {
	UID         string `gorm:"primaryKey;column:uid"`
	Role        string `gorm:"column:role"`
	Email       string `gorm:"column:email"`
	DisplayName string `gorm:"column:display_name"`
}

func (User) TableName() string { return "users" }

// RoleValue returns the parsed role, or false for unknown roles.
func (u User) RoleValue() (authorization.Role, bool) {
	return authorization.ParseRole(u.Role)
}

type Lookup interface {
	GetUser(ctx context.Context, uid string) (*User, error)
}

type Params struct {
	fx.In

	DB *gorm.DB
}

type lookup struct {
	users repository.Repository[User]
}

func NewLookup(p Params) Lookup {
	return &lookup{users: repository.ProvideStore[User](p.DB)}
}

func (l *lookup) GetUser(ctx context.Context, uid string) (*User, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrUserNotFound
	}
	user, err := l.users.FindOne(ctx, &User{UID: uid})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

var Module = fx.Module("identity",
	fx.Provide(NewLookup),
)
