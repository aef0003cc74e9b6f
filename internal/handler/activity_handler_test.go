package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	"github.com/noah-isme/edu-authoring-api/internal/service"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

type rosterServiceMock struct {
	submissions  []models.Submission
	lastStatuses []models.SubmissionStatus
	lastStudent  models.UserInfo
	lastAnswers  models.Answers
	err          error
}

func (m *rosterServiceMock) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Activity{ID: id, Title: "Frações"}, nil
}

func (m *rosterServiceMock) ListActivities(ctx context.Context, classID string) ([]models.ActivitySummary, error) {
	return []models.ActivitySummary{{ID: "act-1", ClassID: classID}}, m.err
}

func (m *rosterServiceMock) ListSubmissions(ctx context.Context, activityID string, statuses ...models.SubmissionStatus) ([]models.Submission, error) {
	m.lastStatuses = statuses
	return m.submissions, m.err
}

func (m *rosterServiceMock) RecordAnswers(ctx context.Context, activityID string, student models.UserInfo, answers models.Answers) (*models.Submission, error) {
	m.lastStudent = student
	m.lastAnswers = answers
	if m.err != nil {
		return nil, m.err
	}
	return &models.Submission{ID: "sub-1", ActivityID: activityID, StudentID: student.ID, Status: models.SubmissionPending}, nil
}

func (m *rosterServiceMock) MarkNotSubmitted(ctx context.Context, activityID, studentID, studentName string) (*models.Submission, error) {
	return &models.Submission{ID: "sub-2", StudentID: studentID, Status: models.SubmissionNotSubmitted}, m.err
}

type statsMock struct{}

func (statsMock) Stats(ctx context.Context, activityID string) (*models.ActivityStats, error) {
	return &models.ActivityStats{ActivityID: activityID, RosterSize: 4}, nil
}

type exporterMock struct {
	lastFormat service.ExportFormat
}

func (m *exporterMock) GradeSheet(ctx context.Context, activityID string, format service.ExportFormat) (*service.ExportFile, error) {
	m.lastFormat = format
	if format != service.ExportCSV && format != service.ExportPDF {
		return nil, appErrors.NewValidationError(map[string]string{"format": "must be csv or pdf"})
	}
	return &service.ExportFile{Filename: "grades.csv", ContentType: "text/csv", Data: []byte("Student\n")}, nil
}

func (m *exporterMock) PublishGradeSheet(ctx context.Context, activityID string, format service.ExportFormat) (*service.GradeSheetLink, error) {
	m.lastFormat = format
	return &service.GradeSheetLink{Token: "tok", Filename: "grades.pdf"}, nil
}

func (m *exporterMock) OpenGradeSheet(token string) (*service.ExportFile, error) {
	if token != "tok" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "download link invalid or expired")
	}
	return &service.ExportFile{Filename: "grades.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

func newActivityHandler(roster *rosterServiceMock, exporter *exporterMock) *ActivityHandler {
	return NewActivityHandler(roster, statsMock{}, exporter, service.NewActivityValidator(nil))
}

func TestActivityHandlerListSubmissionsFiltersByStatus(t *testing.T) {
	roster := &rosterServiceMock{submissions: []models.Submission{{ID: "s1"}}}
	h := newActivityHandler(roster, &exporterMock{})

	c, w := newTestContext(http.MethodGet, "/activities/act-1/submissions?status=pending&status=manual_review", "", teacherClaims())
	h.ListSubmissions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.SubmissionStatus{models.SubmissionPending, models.SubmissionManualReview}, roster.lastStatuses)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestActivityHandlerRecordAnswersUsesCaller(t *testing.T) {
	roster := &rosterServiceMock{}
	h := newActivityHandler(roster, &exporterMock{})
	student := &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent, FullName: "Ana"}

	c, w := newTestContext(http.MethodPost, "/activities/act-1/submissions", `{"answers":[{"question_id":"q1","answer_text":"4"}]}`, student)
	h.RecordAnswers(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "student-1", roster.lastStudent.ID)
	assert.Equal(t, "Ana", roster.lastStudent.FullName)
	require.Len(t, roster.lastAnswers, 1)

	c, w = newTestContext(http.MethodPost, "/activities/act-1/submissions", `{"answers":[{"answer_text":"4"}]}`, student)
	h.RecordAnswers(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityHandlerMarkNotSubmittedRequiresStudent(t *testing.T) {
	h := newActivityHandler(&rosterServiceMock{}, &exporterMock{})

	c, w := newTestContext(http.MethodPost, "/activities/act-1/submissions/missing", `{"student_name":"Caio"}`, teacherClaims())
	h.MarkNotSubmitted(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Fields, "student_id")
}

func TestActivityHandlerExportStreamsFile(t *testing.T) {
	exporter := &exporterMock{}
	h := newActivityHandler(&rosterServiceMock{}, exporter)

	c, w := newTestContext(http.MethodGet, "/activities/act-1/export", "", teacherClaims())
	h.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportCSV, exporter.lastFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="grades.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Student\n", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/activities/act-1/export?format=xlsx", "", teacherClaims())
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActivityHandlerGetNotFound(t *testing.T) {
	h := newActivityHandler(&rosterServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "activity not found")}, &exporterMock{})

	c, w := newTestContext(http.MethodGet, "/activities/missing", "", teacherClaims())
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActivityHandlerPublishAndDownload(t *testing.T) {
	exporter := &exporterMock{}
	h := newActivityHandler(&rosterServiceMock{}, exporter)

	c, w := newTestContext(http.MethodPost, "/activities/act-1/export/link?format=pdf", "", teacherClaims())
	h.PublishExport(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, service.ExportPDF, exporter.lastFormat)
	assert.Contains(t, w.Body.String(), `"token":"tok"`)

	c, w = newTestContext(http.MethodGet, "/exports/tok", "", nil)
	c.AddParam("token", "tok")
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	c, w = newTestContext(http.MethodGet, "/exports/bad", "", nil)
	c.AddParam("token", "bad")
	h.Download(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
