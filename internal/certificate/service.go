package certificate

import (
	"context"
	"errors"
	"time"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
)

// MaxBulk caps a bulk ZIP export.
const MaxBulk = 500

type Courses interface {
	GetCourse(ctx context.Context, id string) (course.Course, error)
	GetOrg(ctx context.Context, id string) (course.Org, error)
}

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (notify.EmailLog, error)
}

type Service struct {
	store     *SQLStore
	courses   Courses
	mailer    Mailer
	audit     audit.Recorder
	log       *logger.Logger
	baseURL   string
	loc       *time.Location
	now       func() time.Time
	bulkLimit int
}

func NewService(store *SQLStore, courses Courses, mailer Mailer, rec audit.Recorder, log *logger.Logger, baseURL string, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:     store,
		courses:   courses,
		mailer:    mailer,
		audit:     rec,
		log:       log,
		baseURL:   baseURL,
		loc:       loc,
		now:       time.Now,
		bulkLimit: MaxBulk,
	}
}

func (s *Service) Store() *SQLStore { return s.store }

func (s *Service) VerifyURL(code string) string { return VerifyURL(s.baseURL, code) }

// IssueForCompletion issues the holder's certificate for a completed course.
// An existing ACTIVE certificate is returned unchanged with created=false.
// The PDF and CERTIFICATE_ISSUED email are best effort and never undo the
// issuance.
func (s *Service) IssueForCompletion(ctx context.Context, userID, courseID string) (Detail, bool, error) {
	if d, err := s.store.ActiveFor(ctx, userID, courseID); err == nil {
		return d, false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return Detail{}, false, err
	}
	c, err := s.courses.GetCourse(ctx, courseID)
	if err != nil {
		return Detail{}, false, err
	}
	org, err := s.courses.GetOrg(ctx, c.OrgID)
	if err != nil {
		return Detail{}, false, err
	}
	now := s.now()
	cert, err := s.store.Insert(ctx, Certificate{
		OrgID:     org.ID,
		UserID:    userID,
		CourseID:  courseID,
		IssuedAt:  now.Unix(),
		ExpiresAt: ExpiryFor(now, org.ValidityMonths()).Unix(),
	})
	if errors.Is(err, ErrActiveExists) {
		d, err := s.store.ActiveFor(ctx, userID, courseID)
		return d, false, err
	}
	if err != nil {
		return Detail{}, false, err
	}
	d, err := s.store.Get(ctx, cert.ID)
	if err != nil {
		return Detail{}, false, err
	}
	s.log.Info("certificate issued", "certificate_id", d.ID, "serial", d.Serial, "user_id", userID, "course_id", courseID)
	if err := s.audit.Record(ctx, d.OrgID, audit.TypeCertificateIssued, d.ID, map[string]any{
		"serial": d.Serial, "userId": userID, "courseId": courseID,
	}); err != nil {
		s.log.Warn("audit certificate issued", "err", err)
	}
	s.deliver(ctx, d)
	return d, true, nil
}

func (s *Service) deliver(ctx context.Context, d Detail) {
	verify := s.VerifyURL(d.VerificationCode)
	var atts []notify.Attachment
	pdf, err := RenderPDF(d, verify, s.loc)
	if err != nil {
		s.log.Error("render certificate pdf", "certificate_id", d.ID, "err", err)
	} else {
		atts = append(atts, notify.Attachment{Filename: FileName(d), ContentType: "application/pdf", Content: pdf})
	}
	_, err = s.mailer.Send(ctx, notify.Email{
		OrgID:         d.OrgID,
		Type:          notify.TypeCertificateIssued,
		UserID:        d.UserID,
		CertificateID: d.ID,
		ToName:        d.HolderName,
		ToEmail:       d.HolderEmail,
		Attachments:   atts,
		Data: notify.CertificateData{
			Name:        d.HolderName,
			CourseTitle: d.CourseTitle,
			Serial:      d.Serial,
			ExpiresOn:   time.Unix(d.ExpiresAt, 0).In(s.loc).Format("2 January 2006"),
			VerifyURL:   verify,
		},
	})
	if err != nil {
		s.log.Warn("certificate email not sent", "certificate_id", d.ID, "err", err)
	}
}

// Verify looks a certificate up by its public code.
func (s *Service) Verify(ctx context.Context, code string) (Verification, error) {
	d, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return Verification{}, err
	}
	return d.Verification(s.now()), nil
}

// PDF renders the certificate document.
// PDF renders d with its verification QR code.
func (s *Service) PDF(d Detail) ([]byte, error) {
	return RenderPDF(d, s.VerifyURL(d.VerificationCode), s.loc)
}

func (s *Service) Revoke(ctx context.Context, orgID, id, reason, actorID string) (Detail, error) {
	if reason == "" {
		return Detail{}, apperr.Invalid("reason is required")
	}
	d, err := s.store.Revoke(ctx, orgID, id, reason, s.now())
	if err != nil {
		return Detail{}, err
	}
	if err := s.audit.Record(ctx, orgID, audit.TypeCertificateRevoked, d.ID, map[string]any{
		"serial": d.Serial, "reason": reason, "by": actorID,
	}); err != nil {
		s.log.Warn("audit certificate revoked", "err", err)
	}
	return d, nil
}

// SelectBulk resolves a bulk export and rejects selections over the cap.
func (s *Service) SelectBulk(ctx context.Context, f Filter) ([]Detail, error) {
	items, err := s.store.Select(ctx, f, s.bulkLimit+1)
	if err != nil {
		return nil, err
	}
	if len(items) > s.bulkLimit {
		return nil, apperr.Invalid("bulk download is limited to %d certificates; narrow the filter", s.bulkLimit)
	}
	if len(items) == 0 {
		return nil, apperr.NotFound("matching certificates")
	}
	return items, nil
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) BaseURL() string { return s.baseURL }
