package persist

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jitrealm/server/internal/world"
)

const accountVersion = 1

var (
	ErrBadName      = errors.New("persist: invalid account name")
	ErrBadPassword  = errors.New("persist: password too short")
	ErrNoAccount    = errors.New("persist: no such account")
	ErrWrongPass    = errors.New("persist: wrong password")
	ErrAccountExists = errors.New("persist: account already exists")
)

// Account is one player's durable record. The password is stored as
// base64(SHA-256(salt || password)) beside its base64 16-byte salt.
type Account struct {
	Version      int                    `json:"version"`
	Name         string                 `json:"name"`
	PasswordHash string                 `json:"passwordHash"`
	Salt         string                 `json:"salt"`
	Wizard       bool                   `json:"wizard"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastLogin    time.Time              `json:"lastLogin"`
	LastRoom     string                 `json:"lastRoom,omitempty"`
	Inventory    []string               `json:"inventory"`
	Equipment    map[string]string      `json:"equipment"`
	State        map[string]world.Value `json:"state,omitempty"`
}

// Accounts is the file-backed account store, one JSON document per player
// under <root>/<first-letter>/<name>/<name>.json.
type Accounts struct {
	root string

	// dummySalt feeds the constant-work path for unknown names so login
	// timing does not reveal whether an account exists.
	dummySalt []byte
	dummyHash []byte
}

func NewAccounts(root string) *Accounts {
	salt := make([]byte, 16)
	_, _ = rand.Read(salt)
	return &Accounts{
		root:      root,
		dummySalt: salt,
		dummyHash: hashPassword(salt, "nobody"),
	}
}

// ValidName enforces the account naming rule: 3 to 20 characters, letters
// and digits only, starting with a letter.
func ValidName(name string) bool {
	if len(name) < 3 || len(name) > 20 {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func (a *Accounts) path(name string) string {
	lower := strings.ToLower(name)
	return filepath.Join(a.root, lower[:1], lower, lower+".json")
}

// Exists reports whether an account file is present.
func (a *Accounts) Exists(name string) bool {
	if !ValidName(name) {
		return false
	}
	_, err := os.Stat(a.path(name))
	return err == nil
}

// Create registers a new account with a fresh random salt.
func (a *Accounts) Create(name, password string, wizard bool) (*Account, error) {
	if !ValidName(name) {
		return nil, ErrBadName
	}
	if len(password) < 4 {
		return nil, ErrBadPassword
	}
	if a.Exists(name) {
		return nil, ErrAccountExists
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acct := &Account{
		Version:      accountVersion,
		Name:         name,
		PasswordHash: base64.StdEncoding.EncodeToString(hashPassword(salt, password)),
		Salt:         base64.StdEncoding.EncodeToString(salt),
		Wizard:       wizard,
		CreatedAt:    now,
		LastLogin:    now,
	}
	if err := a.Save(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// Login validates a name/password pair. The hash comparison runs whether
// or not the account exists, so both failure modes cost the same.
func (a *Accounts) Login(name, password string) (*Account, error) {
	if !ValidName(name) {
		subtle.ConstantTimeCompare(a.dummyHash, hashPassword(a.dummySalt, password))
		return nil, ErrNoAccount
	}
	acct, err := a.load(name)
	if err != nil {
		subtle.ConstantTimeCompare(a.dummyHash, hashPassword(a.dummySalt, password))
		return nil, ErrNoAccount
	}
	salt, err := base64.StdEncoding.DecodeString(acct.Salt)
	if err != nil {
		return nil, fmt.Errorf("corrupt salt for %s: %w", name, err)
	}
	want, err := base64.StdEncoding.DecodeString(acct.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt hash for %s: %w", name, err)
	}
	if subtle.ConstantTimeCompare(want, hashPassword(salt, password)) != 1 {
		return nil, ErrWrongPass
	}
	return acct, nil
}

func (a *Accounts) load(name string) (*Account, error) {
	data, err := os.ReadFile(a.path(name))
	if err != nil {
		return nil, err
	}
	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", name, err)
	}
	if acct.Version != accountVersion {
		return nil, fmt.Errorf("account version %d not supported", acct.Version)
	}
	return &acct, nil
}

// Save writes the account atomically, same temp-and-rename dance as the
// world snapshot.
func (a *Accounts) Save(acct *Account) error {
	path := a.path(acct.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".account-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func hashPassword(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}
