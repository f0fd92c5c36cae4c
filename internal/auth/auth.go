// Package auth resolves the operator token and the identity tuple that
// every server call carries.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

const tokenKey = "token"

// Token reads the operator token from <shellRoot>/config, a JSON
// key/value mapping.
func Token(shellRoot string) (string, error) {
	path := filepath.Join(shellRoot, "config")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading token config %s: %w", path, err)
	}
	var cfg map[string]string
	if err := json.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("parsing token config %s: %w", path, err)
	}
	token, ok := cfg[tokenKey]
	if !ok || token == "" {
		return "", fmt.Errorf("no token in %s: set one with `crucible token set <token>`", path)
	}
	return token, nil
}

// SaveToken writes the token config file, creating shellRoot if needed.
// Existing keys other than the token are preserved.
func SaveToken(shellRoot, token string) error {
	if err := os.MkdirAll(shellRoot, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", shellRoot, err)
	}
	path := filepath.Join(shellRoot, "config")
	cfg := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing existing token config %s: %w", path, err)
		}
	}
	cfg[tokenKey] = token
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling token config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Identity is the machine/process tuple reported with every acquisition
// and report call.
type Identity struct {
	MachineID string
	ProcessID string
}

// CurrentIdentity is resolved fresh on every job so a long-running
// evaluator never reports a stale hostname.
func CurrentIdentity() Identity {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return Identity{
		MachineID: host,
		ProcessID: strconv.Itoa(os.Getpid()),
	}
}

// User is the effective host user, passed into the evaluation containers
// so files they write are owned by the invoking operator.
type User struct {
	Username string
	UID      int
}

func CurrentUser() (User, error) {
	u, err := user.Current()
	if err != nil {
		return User{}, fmt.Errorf("resolving current user: %w", err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return User{}, fmt.Errorf("non-numeric uid %q: %w", u.Uid, err)
	}
	return User{Username: u.Username, UID: uid}, nil
}
