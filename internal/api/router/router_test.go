package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetica/platform-core/internal/api/handler"
	"github.com/assetica/platform-core/internal/auth"
	"github.com/assetica/platform-core/internal/job"
	"github.com/assetica/platform-core/internal/jobstore"
)

var testSecret = []byte("router-test-secret")

const (
	testIssuer   = "assetica-identity"
	testAudience = "platform-core"

	jobIDAlpha = "11111111-1111-1111-1111-111111111111"
	jobIDBeta  = "22222222-2222-2222-2222-222222222222"
)

// fakeStore backs the handlers with in-memory job records.
type fakeStore struct {
	jobs map[string]*job.Job

	enqueued   []job.NewJob
	requeueErr error
	deleteErr  error
	listResult []job.Job
}

func (f *fakeStore) Enqueue(ctx context.Context, n job.NewJob) (string, error) {
	f.enqueued = append(f.enqueued, n)
	return jobIDAlpha, nil
}

func (f *fakeStore) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return j, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, filter jobstore.ListFilter) ([]job.Job, error) {
	return f.listResult, nil
}

func (f *fakeStore) Requeue(ctx context.Context, jobID string) error {
	return f.requeueErr
}

func (f *fakeStore) Delete(ctx context.Context, jobID string) error {
	return f.deleteErr
}

type fakePublisher struct {
	published [][]byte
	err       error
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

func newTestRouter(t *testing.T, store *fakeStore, publisher *fakePublisher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    testSecret,
		Issuer:    testIssuer,
		Audience:  testAudience,
		ClockSkew: 30 * time.Second,
	})
	require.NoError(t, err)

	deps := &handler.Dependencies{
		Logger:      slog.New(slog.DiscardHandler),
		Store:       store,
		Publisher:   publisher,
		MaxAttempts: 5,
	}
	return SetupRouter(deps, verifier)
}

func issueToken(t *testing.T, tenantID string, capabilities ...string) string {
	t.Helper()
	now := time.Now()
	token, err := auth.Sign(testSecret, auth.Claims{
		Issuer:       testIssuer,
		Subject:      "user-42",
		Audience:     testAudience,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(time.Hour).Unix(),
		TenantID:     tenantID,
		Capabilities: capabilities,
	})
	require.NoError(t, err)
	return token
}

func doRequest(r *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func storedJob(id, tenantID, state string) *job.Job {
	now := time.Now().UTC()
	return &job.Job{
		JobID:         id,
		TenantID:      tenantID,
		Subject:       "user-42",
		JobType:       "send-email",
		Payload:       `{"to":"a@example.com"}`,
		State:         state,
		Attempts:      1,
		MaxAttempts:   5,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestHealthEndpoint_Open(t *testing.T) {
	r := newTestRouter(t, &fakeStore{}, &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAuthentication_RejectsEveryBadCredential(t *testing.T) {
	now := time.Now()
	expired, err := auth.Sign(testSecret, auth.Claims{
		Issuer:    testIssuer,
		Subject:   "user-42",
		Audience:  testAudience,
		IssuedAt:  now.Add(-2 * time.Hour).Unix(),
		ExpiresAt: now.Add(-time.Hour).Unix(),
	})
	require.NoError(t, err)

	wrongIssuer, err := auth.Sign(testSecret, auth.Claims{
		Issuer:    "someone-else",
		Subject:   "user-42",
		Audience:  testAudience,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	credentials := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-real-token"},
		{"expired token", expired},
		{"wrong issuer", wrongIssuer},
	}

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/jobs"},
		{http.MethodGet, "/api/v1/jobs/" + jobIDAlpha},
		{http.MethodGet, "/api/v1/admin/jobs"},
		{http.MethodGet, "/api/v1/admin/jobs/" + jobIDAlpha},
		{http.MethodPost, "/api/v1/admin/jobs/" + jobIDAlpha + "/requeue"},
		{http.MethodDelete, "/api/v1/admin/jobs/" + jobIDAlpha},
	}

	r := newTestRouter(t, &fakeStore{}, &fakePublisher{})

	for _, cred := range credentials {
		for _, route := range routes {
			t.Run(cred.name+" "+route.method+" "+route.path, func(t *testing.T) {
				w := doRequest(r, route.method, route.path, cred.token, nil)

				require.Equal(t, http.StatusUnauthorized, w.Code)
				// The rejection reason must not leak to the caller.
				assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
			})
		}
	}
}

func TestAuthorization_AdminRoutesNeedAdminCapability(t *testing.T) {
	store := &fakeStore{jobs: map[string]*job.Job{
		jobIDAlpha: storedJob(jobIDAlpha, "tenant-a", job.StateFailed),
	}}
	r := newTestRouter(t, store, &fakePublisher{})

	nonAdmin := issueToken(t, "tenant-a")

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/admin/jobs"},
		{http.MethodGet, "/api/v1/admin/jobs/" + jobIDAlpha},
		{http.MethodPost, "/api/v1/admin/jobs/" + jobIDAlpha + "/requeue"},
		{http.MethodDelete, "/api/v1/admin/jobs/" + jobIDAlpha},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			w := doRequest(r, route.method, route.path, nonAdmin, nil)

			require.Equal(t, http.StatusForbidden, w.Code)
			assert.JSONEq(t, `{"error":"forbidden"}`, w.Body.String())
		})
	}

	// The same routes work for an admin.
	admin := issueToken(t, "tenant-ops", auth.CapabilityAdmin)
	w := doRequest(r, http.MethodGet, "/api/v1/admin/jobs/"+jobIDAlpha, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEnqueueJob(t *testing.T) {
	t.Run("valid request is accepted", func(t *testing.T) {
		store := &fakeStore{}
		publisher := &fakePublisher{}
		r := newTestRouter(t, store, publisher)

		body := []byte(`{"job_type":"send-email","payload":{"to":"a@example.com"}}`)
		w := doRequest(r, http.MethodPost, "/api/v1/jobs", issueToken(t, "tenant-a"), body)

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, jobIDAlpha, resp["job_id"])
		assert.Equal(t, job.StateEnqueued, resp["state"])

		// The enqueue carries the authenticated caller, not request fields.
		require.Len(t, store.enqueued, 1)
		assert.Equal(t, "tenant-a", store.enqueued[0].TenantID)
		assert.Equal(t, "user-42", store.enqueued[0].Subject)
		assert.Equal(t, "send-email", store.enqueued[0].JobType)
		assert.Equal(t, 5, store.enqueued[0].MaxAttempts)

		// And a wake-up notification went out.
		require.Len(t, publisher.published, 1)
		assert.Contains(t, string(publisher.published[0]), jobIDAlpha)
	})

	t.Run("scheduled request reports SCHEDULED", func(t *testing.T) {
		store := &fakeStore{}
		r := newTestRouter(t, store, &fakePublisher{})

		scheduledAt := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		body := []byte(`{"job_type":"send-email","payload":{},"scheduled_at":"` + scheduledAt + `"}`)
		w := doRequest(r, http.MethodPost, "/api/v1/jobs", issueToken(t, "tenant-a"), body)

		require.Equal(t, http.StatusAccepted, w.Code)

		var resp map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, job.StateScheduled, resp["state"])
	})

	t.Run("missing job_type is rejected", func(t *testing.T) {
		r := newTestRouter(t, &fakeStore{}, &fakePublisher{})

		body := []byte(`{"payload":{}}`)
		w := doRequest(r, http.MethodPost, "/api/v1/jobs", issueToken(t, "tenant-a"), body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("publisher failure does not fail the enqueue", func(t *testing.T) {
		store := &fakeStore{}
		publisher := &fakePublisher{err: errors.New("broker down")}
		r := newTestRouter(t, store, publisher)

		body := []byte(`{"job_type":"send-email","payload":{}}`)
		w := doRequest(r, http.MethodPost, "/api/v1/jobs", issueToken(t, "tenant-a"), body)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Len(t, store.enqueued, 1)
	})
}

func TestGetJob_TenantScoping(t *testing.T) {
	store := &fakeStore{jobs: map[string]*job.Job{
		jobIDAlpha: storedJob(jobIDAlpha, "tenant-a", job.StateSucceeded),
		jobIDBeta:  storedJob(jobIDBeta, "tenant-a", job.StateDeleted),
	}}
	r := newTestRouter(t, store, &fakePublisher{})

	t.Run("caller sees own tenant's job", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+jobIDAlpha, issueToken(t, "tenant-a"), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, jobIDAlpha, resp["job_id"])
		assert.Equal(t, job.StateSucceeded, resp["state"])
	})

	t.Run("other tenant's job looks like it does not exist", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+jobIDAlpha, issueToken(t, "tenant-b"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("deleted job is invisible to its own tenant", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+jobIDBeta, issueToken(t, "tenant-a"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("admin sees across tenants", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/"+jobIDAlpha, issueToken(t, "tenant-ops", auth.CapabilityAdmin), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid uuid", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/not-a-uuid", issueToken(t, "tenant-a"), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/33333333-3333-3333-3333-333333333333", issueToken(t, "tenant-a"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAdminListJobs(t *testing.T) {
	listed := []job.Job{
		*storedJob(jobIDAlpha, "tenant-a", job.StateFailed),
		*storedJob(jobIDBeta, "tenant-b", job.StateSucceeded),
	}
	store := &fakeStore{listResult: listed}
	r := newTestRouter(t, store, &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/api/v1/admin/jobs?page_size=20", issueToken(t, "tenant-ops", auth.CapabilityAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs       []map[string]interface{} `json:"jobs"`
		NextCursor string                   `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, jobIDAlpha, resp.Jobs[0]["job_id"])
	assert.Equal(t, jobIDBeta, resp.Jobs[1]["job_id"])
	// Fewer rows than the page size means no next page.
	assert.Empty(t, resp.NextCursor)
}

func TestAdminListJobs_Pagination(t *testing.T) {
	// Three rows against page_size=2: the extra row signals another page.
	listed := []job.Job{
		*storedJob(jobIDAlpha, "tenant-a", job.StateFailed),
		*storedJob(jobIDBeta, "tenant-b", job.StateSucceeded),
		*storedJob("33333333-3333-3333-3333-333333333333", "tenant-c", job.StateEnqueued),
	}
	store := &fakeStore{listResult: listed}
	r := newTestRouter(t, store, &fakePublisher{})

	w := doRequest(r, http.MethodGet, "/api/v1/admin/jobs?page_size=2", issueToken(t, "tenant-ops", auth.CapabilityAdmin), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs       []map[string]interface{} `json:"jobs"`
		NextCursor string                   `json:"next_cursor"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Len(t, resp.Jobs, 2)
	assert.NotEmpty(t, resp.NextCursor)

	cursor, err := handler.DecodeJobCursor(resp.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, jobIDBeta, cursor.JobID)
}

func TestAdminRequeueJob(t *testing.T) {
	tests := []struct {
		name       string
		requeueErr error
		wantStatus int
	}{
		{
			name:       "requeue succeeds",
			requeueErr: nil,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown job",
			requeueErr: job.ErrJobNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "job not in a requeueable state",
			requeueErr: job.ErrInvalidTransition,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "store failure",
			requeueErr: errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{requeueErr: tt.requeueErr}
			r := newTestRouter(t, store, &fakePublisher{})

			w := doRequest(r, http.MethodPost, "/api/v1/admin/jobs/"+jobIDAlpha+"/requeue",
				issueToken(t, "tenant-ops", auth.CapabilityAdmin), nil)

			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				var resp map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, jobIDAlpha, resp["job_id"])
				assert.Equal(t, job.StateScheduled, resp["state"])
			}
		})
	}
}

func TestAdminDeleteJob(t *testing.T) {
	tests := []struct {
		name       string
		deleteErr  error
		wantStatus int
	}{
		{
			name:       "delete succeeds",
			deleteErr:  nil,
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "unknown job",
			deleteErr:  job.ErrJobNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "processing job cannot be deleted",
			deleteErr:  job.ErrInvalidTransition,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{deleteErr: tt.deleteErr}
			r := newTestRouter(t, store, &fakePublisher{})

			w := doRequest(r, http.MethodDelete, "/api/v1/admin/jobs/"+jobIDAlpha,
				issueToken(t, "tenant-ops", auth.CapabilityAdmin), nil)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
