// Package auth provides Spotify app authentication with token caching.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

const (
	configDirName = "tonal-divider"
	tokenFileName = "spotify-tokens.json"
)

// TokenCache stores app tokens on disk, keyed by client ID so that switching
// apps never reuses another app's token.
type TokenCache struct {
	path     string
	clientID string
}

// DefaultTokenCache returns a TokenCache for clientID at the default location:
// ~/.config/tonal-divider/spotify-tokens.json
func DefaultTokenCache(clientID string) (*TokenCache, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}

	path := filepath.Join(configDir, configDirName, tokenFileName)
	return &TokenCache{path: path, clientID: clientID}, nil
}

// NewTokenCache creates a TokenCache for clientID with a custom path.
func NewTokenCache(path, clientID string) *TokenCache {
	return &TokenCache{path: path, clientID: clientID}
}

// Path returns the file path where tokens are stored.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the cached token for the cache's client ID.
// Returns (nil, nil) if there is none.
func (c *TokenCache) Load() (*oauth2.Token, error) {
	tokens, err := c.readAll()
	if err != nil {
		return nil, err
	}
	return tokens[c.clientID], nil
}

// Save stores token for the cache's client ID, keeping other entries.
func (c *TokenCache) Save(token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot save nil token")
	}

	tokens, err := c.readAll()
	if err != nil {
		return err
	}
	tokens[c.clientID] = token
	return c.writeAll(tokens)
}

// Delete removes the token for the cache's client ID. The file goes once no
// entries remain. Returns nil if there was nothing to remove.
func (c *TokenCache) Delete() error {
	tokens, err := c.readAll()
	if err != nil {
		return err
	}
	if _, ok := tokens[c.clientID]; !ok {
		return nil
	}
	delete(tokens, c.clientID)

	if len(tokens) > 0 {
		return c.writeAll(tokens)
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

func (c *TokenCache) readAll() (map[string]*oauth2.Token, error) {
	tokens := make(map[string]*oauth2.Token)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tokens, nil
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parsing token file: %w", err)
	}
	return tokens, nil
}

// writeAll replaces the token file through a temporary file in the same
// directory.
func (c *TokenCache) writeAll(tokens map[string]*oauth2.Token) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tokens: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tokenFileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
