package auth

import (
	"os"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

// InitGothProviders wires the OAuth providers used for login. Only Google
// is configured; the surrounding session handling does not care which
// provider established the identity.
func InitGothProviders() {
	sessionSecret := os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		sessionSecret = "digisign-dev-secret"
	}
	store := sessions.NewCookieStore([]byte(sessionSecret))
	store.MaxAge(86400 * 7)
	store.Options.HttpOnly = true
	gothic.Store = store

	callbackBase := os.Getenv("OAUTH_CALLBACK_URL")
	if callbackBase == "" {
		callbackBase = "http://localhost:8080"
	}

	goth.UseProviders(
		google.New(
			os.Getenv("GOOGLE_CLIENT_ID"),
			os.Getenv("GOOGLE_CLIENT_SECRET"),
			callbackBase+"/auth/google/callback",
			"email", "profile",
		),
	)
}
