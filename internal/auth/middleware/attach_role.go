package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/coremine/safety-lms/internal/rbac"
)

// AttachRoleFromDB replaces the token's role and org with the stored ones so
// a role change applies before the token expires. Unknown users are 401.
func AttachRoleFromDB(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)

			var role, org string
			err := db.QueryRowContext(ctx, `SELECT role, org_id FROM users WHERE id=$1`, sub).Scan(&role, &org)
			switch {
			case err == nil:
				ctx = WithOrg(rbac.WithRole(ctx, role), org)
				next.ServeHTTP(w, r.WithContext(ctx))
			case errors.Is(err, sql.ErrNoRows):
				unauthorized(w, "unknown user")
			default:
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			}
		})
	}
}
