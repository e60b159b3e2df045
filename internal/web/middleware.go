package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/datachat-ai/datachat/internal/store"
)

type contextKey string

const (
	userKey    contextKey = "user"
	sessionKey contextKey = "session"
)

// withUser authenticates the Bearer API key and stores the user on the
// request context.
func (s *Server) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// withSession authenticates and resolves the {id} path value to a
// session owned by the caller.
func (s *Server) withSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authenticate(w, r)
		if !ok {
			return
		}
		session, err := s.store.GetSession(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				s.errorResponse(w, http.StatusNotFound, "session not found")
				return
			}
			s.logger.Error("failed to load session", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "failed to load session")
			return
		}
		// Foreign sessions look identical to missing ones.
		if session.UserID != user.ID {
			s.errorResponse(w, http.StatusNotFound, "session not found")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, sessionKey, session)
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	header := r.Header.Get("Authorization")
	key, found := strings.CutPrefix(header, "Bearer ")
	if !found || key == "" {
		s.errorResponse(w, http.StatusUnauthorized, "missing API key")
		return nil, false
	}

	userID, secret, err := store.ParseAPIKey(key)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "invalid API key")
		return nil, false
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			s.errorResponse(w, http.StatusUnauthorized, "invalid API key")
			return nil, false
		}
		s.logger.Error("failed to load user", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "failed to load user")
		return nil, false
	}

	if err := store.VerifySecret(user.APIKeyHash, secret); err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "invalid API key")
		return nil, false
	}
	return user, true
}

func requestUser(r *http.Request) *store.User {
	user, _ := r.Context().Value(userKey).(*store.User)
	return user
}

func requestSession(r *http.Request) *store.Session {
	session, _ := r.Context().Value(sessionKey).(*store.Session)
	return session
}
