package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/testkit"
)

func TestComplianceSummary(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	north := testkit.SeedSite(t, dbh, orgID, "North Pit")
	courseA, _ := testkit.SeedCourse(t, dbh, orgID, "VIDEO")
	courseB, _ := testkit.SeedCourse(t, dbh, orgID, "VIDEO")
	now := time.Now()

	ana := testkit.SeedUser(t, dbh, orgID, north, "ana@example.com", "LEARNER")
	testkit.SeedEnrollment(t, dbh, ana, courseA)
	_, err := dbh.Exec(`UPDATE enrollments SET status='COMPLETED', progress=100 WHERE user_id=$1`, ana)
	require.NoError(t, err)
	testkit.SeedCertificate(t, dbh, orgID, ana, courseA, now.AddDate(0, -11, 0), now.AddDate(0, 0, 20))

	bo := testkit.SeedUser(t, dbh, orgID, north, "bo@example.com", "LEARNER")
	testkit.SeedEnrollment(t, dbh, bo, courseA)
	_, err = dbh.Exec(`UPDATE enrollments SET status='COMPLETED', progress=100 WHERE user_id=$1`, bo)
	require.NoError(t, err)
	testkit.SeedCertificate(t, dbh, orgID, bo, courseA, now.AddDate(-1, 0, -2), now.AddDate(0, 0, -2))

	cy := testkit.SeedUser(t, dbh, orgID, "", "cy@example.com", "LEARNER")
	testkit.SeedEnrollment(t, dbh, cy, courseB)

	other := testkit.SeedOrg(t, dbh, false, 0)
	testkit.SeedUser(t, dbh, other, "", "zed@example.com", "LEARNER")

	b := NewBuilder(dbh, time.UTC)

	rep, err := b.Build(ctx, Filter{OrgID: orgID})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 3)
	byEmail := map[string]Row{}
	for _, r := range rep.Rows {
		byEmail[r.Email] = r
	}
	assert.True(t, byEmail["ana@example.com"].IsCompliant)
	assert.Equal(t, "North Pit", byEmail["ana@example.com"].Site)
	require.NotNil(t, byEmail["ana@example.com"].DaysUntilExpiry)
	assert.Equal(t, 20, *byEmail["ana@example.com"].DaysUntilExpiry)
	assert.False(t, byEmail["bo@example.com"].IsCompliant)
	assert.Equal(t, "ENROLLED", byEmail["cy@example.com"].Status)
	assert.Nil(t, byEmail["cy@example.com"].DaysUntilExpiry)
	assert.Equal(t, Totals{Users: 3, Enrolled: 3, Completed: 2, Compliant: 1, ExpiringSoon: 1, Expired: 1, Rate: 33.33}, rep.Totals)

	bySite, err := b.Build(ctx, Filter{OrgID: orgID, SiteID: north})
	require.NoError(t, err)
	assert.Len(t, bySite.Rows, 2)

	byCourse, err := b.Build(ctx, Filter{OrgID: orgID, CourseID: courseB})
	require.NoError(t, err)
	require.Len(t, byCourse.Rows, 3)
	notEnrolled := 0
	for _, r := range byCourse.Rows {
		if r.Status == StatusNotEnrolled {
			notEnrolled++
			assert.Equal(t, "Underground Safety", r.Course)
		}
	}
	assert.Equal(t, 2, notEnrolled)

	_, err = b.Build(ctx, Filter{OrgID: other, CourseID: courseA})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rep.Rows, time.UTC))
	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, Header, recs[0])
	assert.Equal(t, "ana@example.com", recs[1][2])
	assert.Equal(t, now.AddDate(0, 0, 20).UTC().Format("2006-01-02"), recs[1][8])
	assert.Equal(t, "true", recs[1][10])
}
