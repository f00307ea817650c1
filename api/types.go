package api

import "context"

// ThemeStore persists the user's theme preference.
type ThemeStore interface {
	DarkTheme(ctx context.Context) (bool, error)
	SetDarkTheme(ctx context.Context, dark bool) error
}
