package certificate

import "time"

type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
)

// VerifyStatus is what the public verification endpoints report.
type VerifyStatus string

const (
	Valid   VerifyStatus = "VALID"
	Expired VerifyStatus = "EXPIRED"
	Revoked VerifyStatus = "REVOKED"
)

type Certificate struct {
	ID               string `json:"id"`
	OrgID            string `json:"orgId"`
	UserID           string `json:"userId"`
	CourseID         string `json:"courseId"`
	Serial           string `json:"serial"`
	VerificationCode string `json:"verificationCode"`
	Status           Status `json:"status"`
	IssuedAt         int64  `json:"issuedAt"`
	ExpiresAt        int64  `json:"expiresAt"`
	RevokedAt        *int64 `json:"revokedAt,omitempty"`
	RevokeReason     string `json:"revokeReason,omitempty"`
}

// Detail is a certificate joined with the names printed on it.
type Detail struct {
	Certificate
	HolderName  string `json:"holderName"`
	HolderEmail string `json:"holderEmail"`
	SiteID      string `json:"siteId,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	CourseTitle string `json:"courseTitle"`
	OrgName     string `json:"orgName"`
}

// StatusAt derives the verification status at t.
func (c Certificate) StatusAt(t time.Time) VerifyStatus {
	switch {
	case c.Status == StatusRevoked:
		return Revoked
	case t.Unix() >= c.ExpiresAt:
		return Expired
	}
	return Valid
}

// Verification is the public view of a certificate. It omits the holder's email.
type Verification struct {
	Status       VerifyStatus `json:"status"`
	Serial       string       `json:"serial"`
	HolderName   string       `json:"holderName"`
	CourseTitle  string       `json:"courseTitle"`
	OrgName      string       `json:"orgName"`
	IssuedAt     time.Time    `json:"issuedAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	RevokedAt    *time.Time   `json:"revokedAt,omitempty"`
	RevokeReason string       `json:"revokeReason,omitempty"`
}

func (d Detail) Verification(now time.Time) Verification {
	v := Verification{
		Status:      d.StatusAt(now),
		Serial:      d.Serial,
		HolderName:  d.HolderName,
		CourseTitle: d.CourseTitle,
		OrgName:     d.OrgName,
		IssuedAt:    time.Unix(d.IssuedAt, 0).UTC(),
		ExpiresAt:   time.Unix(d.ExpiresAt, 0).UTC(),
	}
	if d.RevokedAt != nil {
		r := time.Unix(*d.RevokedAt, 0).UTC()
		v.RevokedAt = &r
		v.RevokeReason = d.RevokeReason
	}
	return v
}

// ExpiryFor adds the validity period in calendar months.
func ExpiryFor(issued time.Time, months int) time.Time {
	return issued.AddDate(0, months, 0)
}

// DaysUntil is the number of calendar days from now to expires in loc.
// It is negative once the expiry date has passed.
func DaysUntil(now, expires time.Time, loc *time.Location) int {
	a, b := now.In(loc), expires.In(loc)
	from := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}
