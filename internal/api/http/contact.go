package http

import (
	"net/http"
	"strings"

	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
)

type contactReq struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company" validate:"max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

// ContactHandler: POST /api/contact, public. The per-IP limit is applied by
// the router. A missing recipient is reported as 500; delivery failures are
// 502 with the provider's message made readable.
func ContactHandler(mailer *notify.Dispatcher, recipient string, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req contactReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		if recipient == "" {
			log.Error("contact form used without CONTACT_RECIPIENT")
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "contact form is not configured"})
			return
		}
		_, err := mailer.Send(r.Context(), notify.Email{
			Type:    notify.TypeContact,
			ToEmail: recipient,
			Data: notify.ContactData{
				Name:    strings.TrimSpace(req.Name),
				Email:   strings.TrimSpace(req.Email),
				Company: strings.TrimSpace(req.Company),
				Message: strings.TrimSpace(req.Message),
			},
		})
		if err != nil {
			log.Warn("contact email failed", "err", err)
			respondJSON(w, http.StatusBadGateway, map[string]string{"error": notify.Friendly(err)})
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}
