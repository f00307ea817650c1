// Package prefs persists the single user preference (dark theme) in a
// key-value store under a fixed key, independent of the task data.
package prefs

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const themeKey = "taskdeck:theme:dark"

// Store reads and writes the theme preference.
type Store struct {
	client *redis.Client
}

// NewStore creates a preference store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// DarkTheme loads the persisted preference. A missing key yields the
// light-theme default without error.
func (s *Store) DarkTheme(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, themeKey).Bool()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return val, nil
}

// SetDarkTheme persists the preference under the fixed key.
func (s *Store) SetDarkTheme(ctx context.Context, dark bool) error {
	return s.client.Set(ctx, themeKey, dark, 0).Err()
}
