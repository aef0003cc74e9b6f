package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
	"github.com/noah-isme/edu-authoring-api/pkg/storage"
)

func newExportFixture() *ExportService {
	activity := committedActivity("act-1")
	activity.Title = "Frações / 7A"
	manual := aiCorrected("s1", 90)
	manual.StudentName = "Ana"
	manual.Status = models.SubmissionCompleted
	manual.ManualGrade = floatPtr(9.5)
	feedback := "great"
	manual.ManualFeedback = &feedback
	ai := aiCorrected("s2", 90)
	ai.StudentName = "Bruno"
	missing := pendingSubmission("s3")
	missing.StudentName = "Caio"
	missing.Status = models.SubmissionNotSubmitted
	missing.SubmittedAt = nil

	roster := newTestRoster(newFakeActivityStore(activity), newFakeSubmissionStore(manual, ai, missing))
	svc := NewExportService(roster, nil)
	svc.now = fixedClock(time.Date(2026, 11, 21, 8, 30, 0, 0, time.UTC))
	return svc
}

func TestGradeSheetCSVUsesEffectiveGrades(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.GradeSheet(context.Background(), "act-1", ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "grades_Frações_-_7A_20261121_083000.csv", file.Filename)

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "Student,Student ID,Status,Submitted At,Grade,Source,Feedback", lines[0])
	assert.Equal(t, "Ana,student-s1,completed,2026-11-01 10:00,9.5,teacher,great", lines[1])
	assert.Equal(t, "Bruno,student-s2,ai_corrected,2026-11-01 10:00,8,ai,well done", lines[2])
	assert.Equal(t, "Caio,student-s3,not_submitted,,,,", lines[3])
	assert.Equal(t, "Max grade: 10", lines[4])
	assert.Equal(t, "Average grade: 8.75 (2 graded)", lines[5])
}

func TestGradeSheetPDF(t *testing.T) {
	svc := newExportFixture()

	file, err := svc.GradeSheet(context.Background(), "act-1", ExportPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestGradeSheetRejectsUnknownFormat(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.GradeSheet(context.Background(), "act-1", "xlsx")
	assert.Equal(t, []string{"format"}, validationFields(t, err))

	_, err = svc.GradeSheet(context.Background(), "missing", ExportCSV)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPublishGradeSheetRoundTrip(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	svc := newExportFixture().WithArchive(store, storage.NewLinkSigner("secret", time.Hour))

	link, err := svc.PublishGradeSheet(context.Background(), "act-1", ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "grades_Frações_-_7A_20261121_083000.csv", link.Filename)

	file, err := svc.OpenGradeSheet(link.Token)
	require.NoError(t, err)
	assert.Equal(t, link.Filename, file.Filename)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "Student,Student ID"))

	_, err = svc.OpenGradeSheet(link.Token + "x")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestPublishGradeSheetRequiresArchive(t *testing.T) {
	svc := newExportFixture()

	_, err := svc.PublishGradeSheet(context.Background(), "act-1", ExportPDF)
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
	assert.Zero(t, svc.PurgeArchive(time.Hour))
}
