package container

import (
	"fmt"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
)

// User is one row of the Patch-seq user table.
type User struct {
	Name  string `csv:"name"`
	Login string `csv:"login"`
	PUser string `csv:"p_user"`
}

// UserTable maps operators to logins and user codes.
type UserTable struct {
	users   []User
	byLogin map[string]User
	byName  map[string]User
}

// NewUserTable indexes users. Later rows win on duplicate keys.
func NewUserTable(users []User) *UserTable {
	t := &UserTable{
		users:   users,
		byLogin: make(map[string]User, len(users)),
		byName:  make(map[string]User, len(users)),
	}
	for _, u := range users {
		if login := strings.TrimSpace(u.Login); login != "" {
			t.byLogin[login] = u
		}
		if name := strings.TrimSpace(u.Name); name != "" {
			t.byName[name] = u
		}
	}
	return t
}

// ParseUsers decodes a CSV with name, login and p_user columns.
func ParseUsers(data []byte) (*UserTable, error) {
	var users []User
	if err := csvutil.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("failed to parse user table: %w", err)
	}
	return NewUserTable(users), nil
}

// LoadUsers reads the user table from disk.
func LoadUsers(path string) (*UserTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read user table: %w", err)
	}
	return ParseUsers(data)
}

// UserCode returns the p_user code for a login.
func (t *UserTable) UserCode(login string) (string, bool) {
	if t == nil {
		return "", false
	}
	u, ok := t.byLogin[login]
	if !ok || strings.TrimSpace(u.PUser) == "" {
		return "", false
	}
	return strings.TrimSpace(u.PUser), true
}

// LoginForName maps an operator's full name to their login.
func (t *UserTable) LoginForName(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	u, ok := t.byName[strings.TrimSpace(name)]
	if !ok || strings.TrimSpace(u.Login) == "" {
		return "", false
	}
	return strings.TrimSpace(u.Login), true
}

// Len returns the number of users.
func (t *UserTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.users)
}
