package yamlfile

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	goSession "github.com/MrEthical07/goSession"
)

// File is the on-disk layout.
//
//	users:
//	  - id: "1"
//	    username: admin
//	    password_hash: $argon2id$v=19$...
//	    status: active
//	    roles: [admin]
//	    permissions: ["system:audit:view"]
//	roles:
//	  admin: ["system:user:list", "system:user:add"]
type File struct {
	Users []User              `yaml:"users"`
	Roles map[string][]string `yaml:"roles,omitempty"`
}

// User is one directory entry.
type User struct {
	ID           string   `yaml:"id"`
	Username     string   `yaml:"username"`
	PasswordHash string   `yaml:"password_hash"`
	Status       string   `yaml:"status,omitempty"`
	Roles        []string `yaml:"roles,omitempty"`
	Permissions  []string `yaml:"permissions,omitempty"`
}

type entry struct {
	cred  goSession.Credential
	perms []string
}

// Directory is an in-memory goSession.Directory loaded from YAML. It suits
// small deployments and tests. Reload swaps the contents atomically.
type Directory struct {
	mu         sync.RWMutex
	byUsername map[string]*entry
	byID       map[string]*entry
}

var _ goSession.Directory = (*Directory)(nil)

// Load reads and parses path.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Directory from YAML bytes.
func Parse(data []byte) (*Directory, error) {
	d := &Directory{}
	if err := d.replace(data); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads path. On error the previous contents stay in place.
func (d *Directory) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("directory: read %s: %w", path, err)
	}
	return d.replace(data)
}

func (d *Directory) replace(data []byte) error {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("directory: parse: %w", err)
	}

	byUsername := make(map[string]*entry, len(f.Users))
	byID := make(map[string]*entry, len(f.Users))
	for i, u := range f.Users {
		u.ID = strings.TrimSpace(u.ID)
		u.Username = strings.TrimSpace(u.Username)
		if u.ID == "" || u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("directory: user #%d needs id, username and password_hash", i+1)
		}
		if _, dup := byUsername[u.Username]; dup {
			return fmt.Errorf("directory: duplicate username %q", u.Username)
		}
		if _, dup := byID[u.ID]; dup {
			return fmt.Errorf("directory: duplicate id %q", u.ID)
		}

		status, err := parseStatus(u.Status)
		if err != nil {
			return fmt.Errorf("directory: user %q: %w", u.Username, err)
		}

		perms := append([]string(nil), u.Permissions...)
		for _, role := range u.Roles {
			codes, ok := f.Roles[role]
			if !ok {
				return fmt.Errorf("directory: user %q references unknown role %q", u.Username, role)
			}
			perms = append(perms, codes...)
		}
		slices.Sort(perms)
		perms = slices.Compact(perms)

		e := &entry{
			cred: goSession.Credential{
				UserID:       u.ID,
				Username:     u.Username,
				PasswordHash: u.PasswordHash,
				Status:       status,
			},
			perms: perms,
		}
		byUsername[u.Username] = e
		byID[u.ID] = e
	}

	d.mu.Lock()
	d.byUsername, d.byID = byUsername, byID
	d.mu.Unlock()
	return nil
}

func parseStatus(s string) (goSession.AccountStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return goSession.AccountActive, nil
	case "disabled":
		return goSession.AccountDisabled, nil
	case "locked":
		return goSession.AccountLocked, nil
	default:
		return goSession.AccountDisabled, fmt.Errorf("unknown status %q", s)
	}
}

// GetCredential implements goSession.CredentialLookup.
func (d *Directory) GetCredential(_ context.Context, username string) (goSession.Credential, error) {
	d.mu.RLock()
	e, ok := d.byUsername[username]
	d.mu.RUnlock()
	if !ok {
		return goSession.Credential{}, fmt.Errorf("%w: %s", goSession.ErrUserNotFound, username)
	}
	return e.cred, nil
}

// AccountStatus implements goSession.AccountStatusCheck.
func (d *Directory) AccountStatus(_ context.Context, userID string) (goSession.AccountStatus, error) {
	d.mu.RLock()
	e, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return goSession.AccountDisabled, fmt.Errorf("%w: id %s", goSession.ErrUserNotFound, userID)
	}
	return e.cred.Status, nil
}

// ResolvePermissions implements goSession.PermissionResolver. The result is
// sorted and free of duplicates.
func (d *Directory) ResolvePermissions(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	e, ok := d.byID[userID]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: id %s", goSession.ErrUserNotFound, userID)
	}
	return append([]string(nil), e.perms...), nil
}

// Len returns the number of users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}
