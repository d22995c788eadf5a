/*
Maddy Mail Server - Composable all-in-one email server.
Copyright © 2019-2020 Max Mazurov <fox.cpp@disroot.org>, Maddy Mail Server contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package auth is a bcrypt-backed module.PlainUserDB, the flat-file
// counterpart of internal/auth/pass_table's table-backed Auth: credentials
// live as "user:bcryptHash" lines in a single file instead of behind a
// pluggable module.Table, since postald has no config-driven module
// registry to plug a SQL or LDAP table into.
package auth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/postalcore/postal/framework/module"
	"golang.org/x/crypto/bcrypt"
)

// PassTable is an in-memory credential store, optionally persisted to a
// flat file, that implements module.PlainUserDB using bcrypt the way
// pass_table.Auth does for its HashBcrypt algorithm.
type PassTable struct {
	mu    sync.RWMutex
	path  string
	creds map[string]string // username -> bcrypt hash
}

// NewPassTable returns an empty, unpersisted PassTable.
func NewPassTable() *PassTable {
	return &PassTable{creds: make(map[string]string)}
}

// LoadPassTableFile reads a "user:bcryptHash" file, one credential per
// line, blank lines and lines starting with '#' ignored. A missing file
// is not an error; it yields an empty, persistable table.
func LoadPassTableFile(path string) (*PassTable, error) {
	t := &PassTable{path: path, creds: make(map[string]string)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: open pass table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("auth: pass table %s: malformed line %q", path, line)
		}
		t.creds[user] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("auth: read pass table: %w", err)
	}
	return t, nil
}

// Save writes the table back to the file path it was loaded from. It is
// a no-op if the table was created with NewPassTable and never given a
// path.
func (t *PassTable) Save() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.path == "" {
		return nil
	}

	f, err := os.OpenFile(t.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("auth: save pass table: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for user, hash := range t.creds {
		if _, err := fmt.Fprintf(w, "%s:%s\n", user, hash); err != nil {
			return err
		}
	}
	return w.Flush()
}

// AuthPlain implements module.PlainAuth.
func (t *PassTable) AuthPlain(username, password string) error {
	t.mu.RLock()
	hash, ok := t.creds[username]
	t.mu.RUnlock()
	if !ok {
		return module.ErrUnknownCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return module.ErrUnknownCredentials
	}
	return nil
}

// ListUsers implements module.PlainUserDB.
func (t *PassTable) ListUsers() ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := make([]string, 0, len(t.creds))
	for user := range t.creds {
		users = append(users, user)
	}
	return users, nil
}

// CreateUser implements module.PlainUserDB.
func (t *PassTable) CreateUser(username, password string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.creds[username]; ok {
		return fmt.Errorf("auth: credentials for %s already exist", username)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: create user %s: %w", username, err)
	}
	t.creds[username] = string(hash)
	return nil
}

// SetUserPassword implements module.PlainUserDB.
func (t *PassTable) SetUserPassword(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth: set password %s: %w", username, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.creds[username] = string(hash)
	return nil
}

// DeleteUser implements module.PlainUserDB.
func (t *PassTable) DeleteUser(username string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.creds, username)
	return nil
}

var _ module.PlainUserDB = (*PassTable)(nil)
