package auth

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// User is a statically configured account. Deployments list them in the
// auth section of the configuration; there is no user database.
type User struct {
	Username     string `json:"username" yaml:"username" mapstructure:"username"`
	PasswordHash string `json:"-" yaml:"password_hash" mapstructure:"password_hash"`
	Role         Role   `json:"role" yaml:"role" mapstructure:"role"`
}

// Users authenticates against the configured account list.
type Users struct {
	byName map[string]User
}

// NewUsers builds the account registry, validating roles and rejecting
// duplicate usernames.
func NewUsers(users []User) (*Users, error) {
	byName := make(map[string]User, len(users))
	for _, u := range users {
		name := strings.TrimSpace(u.Username)
		if name == "" {
			return nil, fmt.Errorf("user with empty username")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate user %q", name)
		}
		switch u.Role {
		case RoleAdmin, RoleWriter, RoleReader:
		default:
			return nil, fmt.Errorf("user %q has unknown role %q", name, u.Role)
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("user %q has no password hash", name)
		}
		byName[name] = u
	}
	return &Users{byName: byName}, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// timingDummy returns a hash to compare against when the username does not
// exist, so a failed login takes the same time either way.
func timingDummy() string {
	dummyHashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte("no-such-user"), DefaultBcryptCost)
		if err == nil {
			dummyHash = string(h)
		}
	})
	return dummyHash
}

// Authenticate verifies a username and password and returns the matching
// principal. Unknown users and wrong passwords both report
// ErrInvalidCredentials so responses do not leak which usernames exist.
func (u *Users) Authenticate(username, password string) (Principal, error) {
	user, ok := u.byName[username]
	if !ok {
		VerifyPassword(password, timingDummy())
		return Principal{}, ErrInvalidCredentials
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Subject: user.Username, Role: user.Role}, nil
}

// Get returns a configured user by name.
func (u *Users) Get(username string) (User, bool) {
	user, ok := u.byName[username]
	return user, ok
}

// Len returns the number of configured users.
func (u *Users) Len() int {
	return len(u.byName)
}
