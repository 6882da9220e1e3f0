package http

import (
	"errors"
	"net/http"

	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/users"
)

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResp struct {
	Token string     `json:"token"`
	User  users.User `json:"user"`
}

func LoginHandler(store *users.SQLStore, authSvc *authmw.AuthService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		u, err := store.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, users.ErrBadCredentials) {
				log.Info("login rejected", "email", users.NormalizeEmail(req.Email))
			}
			respondError(w, log, r, err)
			return
		}
		tok, err := authSvc.IssueJWT(u.ID, string(u.Role), u.OrgID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, loginResp{Token: tok, User: u})
	}
}

func MeHandler(store *users.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := store.Get(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, u)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

func ChangePasswordHandler(store *users.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		u, err := store.Get(ctx, authmw.SubjectFromContext(ctx))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if _, err := store.Authenticate(ctx, u.Email, req.OldPassword); err != nil {
			if errors.Is(err, users.ErrBadCredentials) {
				respondJSON(w, http.StatusForbidden, map[string]string{"error": "incorrect old password"})
				return
			}
			respondError(w, log, r, err)
			return
		}
		if err := store.SetPassword(ctx, u.ID, req.NewPassword); err != nil {
			respondError(w, log, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
