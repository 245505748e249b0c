package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse.io/sitepulse/internal/api/middleware"
	"sitepulse.io/sitepulse/internal/audit"
	"sitepulse.io/sitepulse/internal/broadcast"
	"sitepulse.io/sitepulse/internal/cascade"
	"sitepulse.io/sitepulse/internal/domain"
	"sitepulse.io/sitepulse/internal/pkg/logger"
	"sitepulse.io/sitepulse/internal/repository/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func newTestRouter(t *testing.T, store *memory.Store) *gin.Engine {
	t.Helper()

	server := NewServer(ServerDeps{
		Store:   store,
		Events:  store,
		Ledger:  audit.NewService(store),
		Adapter: cascade.NewAdapter(),
		Hub:     broadcast.NewHub(),
	})

	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.GET("/healthz", server.GetHealth)
	v1 := router.Group("/api/v1")
	v1.GET("/projects/:id", server.GetProject)
	v1.GET("/projects/:id/ledger", server.GetProjectLedger)
	v1.GET("/projects/:id/notifications", server.GetProjectNotifications)
	v1.POST("/changes", server.PostChange)
	return router
}

func seedProject(t *testing.T, store *memory.Store) domain.Project {
	t.Helper()

	project := domain.Project{
		ID:                      "proj-1",
		TenantID:                "tenant-1",
		Name:                    "Riverside Medical Center",
		EstimatedCompletionDate: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		ScheduleVarianceDays:    3,
		HealthScore:             4.1,
		StatusColor:             domain.ColorGreen,
		EstimatedCost:           1_000_000,
		ActualCost:              980_000,
		Version:                 1,
	}
	store.PutProject(project)
	return project
}

// applyFixtureEffect pushes one applied cascade through the store so the
// ledger and notification endpoints have real rows to serve.
func applyFixtureEffect(t *testing.T, store *memory.Store, project domain.Project) {
	t.Helper()

	effect := &domain.CascadeEffect{
		Event: &domain.DomainEvent{
			EventID:      "evt-1",
			Type:         domain.EventDefectFound,
			TenantID:     project.TenantID,
			ProjectID:    project.ID,
			SourceEntity: "punch_items",
			SourceID:     "punch-9",
			OccurredAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		Notifications: []domain.NotificationDraft{{
			Type:       "defect_found",
			Priority:   domain.PriorityHigh,
			Recipients: []domain.Role{domain.RoleProjectManager},
			Title:      "Defect recorded",
			Message:    "A high severity defect was recorded.",
			Channels:   []domain.Channel{domain.ChannelInApp},
		}},
		Actions: []string{"notified project_manager"},
	}
	require.NoError(t, store.ApplyEffect(context.Background(), effect, project.Version))
}

func TestGetHealth(t *testing.T) {
	router := newTestRouter(t, memory.New(memory.Options{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetProject(t *testing.T) {
	store := memory.New(memory.Options{})
	project := seedProject(t, store)
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Project domain.Project `json:"project"`
		Health  struct {
			Score float64            `json:"score"`
			Color domain.StatusColor `json:"color"`
		} `json:"health"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, project.Name, body.Project.Name)
	assert.Equal(t, project.HealthScore, body.Health.Score)
	assert.Equal(t, domain.ColorGreen, body.Health.Color)
}

func TestGetProject_NotFound(t *testing.T) {
	router := newTestRouter(t, memory.New(memory.Options{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/ghost", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PROJECT_NOT_FOUND")
}

func TestGetProjectLedger(t *testing.T) {
	store := memory.New(memory.Options{})
	project := seedProject(t, store)
	applyFixtureEffect(t, store, project)
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/ledger", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "evt-1", body.Entries[0].EventID)
	assert.Equal(t, []string{"notified project_manager"}, body.Entries[0].ActionsTaken)
}

func TestGetProjectLedger_BadRange(t *testing.T) {
	store := memory.New(memory.Options{})
	seedProject(t, store)
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/projects/proj-1/ledger?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestGetProjectLedger_BadTimeParam(t *testing.T) {
	router := newTestRouter(t, memory.New(memory.Options{}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/v1/projects/proj-1/ledger?from=yesterday", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetProjectNotifications(t *testing.T) {
	store := memory.New(memory.Options{})
	project := seedProject(t, store)
	applyFixtureEffect(t, store, project)
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/notifications", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "defect_found", body.Notifications[0].Type)
	assert.Equal(t, domain.NotificationPending, body.Notifications[0].Status)
}

func TestGetProjectNotifications_EmptyIsArray(t *testing.T) {
	store := memory.New(memory.Options{})
	seedProject(t, store)
	router := newTestRouter(t, store)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/proj-1/notifications", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"notifications":[]`)
}

func TestPostChange_Recognized(t *testing.T) {
	store := memory.New(memory.Options{})
	seedProject(t, store)
	router := newTestRouter(t, store)

	change := fmt.Sprintf(`{
		"change_id": "chg-1",
		"entity": "daily_logs",
		"op": "insert",
		"tenant_id": "tenant-1",
		"occurred_at": %q,
		"after": {
			"id": "log-1",
			"project_id": "proj-1",
			"delay_flag": true,
			"delay_cause": "weather",
			"delay_days": 3
		}
	}`, time.Now().UTC().Format(time.RFC3339))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes", strings.NewReader(change))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var body struct {
		Recognized bool   `json:"recognized"`
		EventID    string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Recognized)
	assert.Equal(t, "chg-1", body.EventID)

	pending, err := store.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventWeatherDelay, pending[0].Event.Type)
}

func TestPostChange_Unrecognized(t *testing.T) {
	store := memory.New(memory.Options{})
	router := newTestRouter(t, store)

	change := `{
		"change_id": "chg-2",
		"entity": "rfis",
		"op": "insert",
		"tenant_id": "tenant-1",
		"occurred_at": "2026-08-01T12:00:00Z",
		"after": {"id": "rfi-1"}
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes", strings.NewReader(change))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"recognized":false`)

	pending, err := store.PendingEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPostChange_MalformedBody(t *testing.T) {
	router := newTestRouter(t, memory.New(memory.Options{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "EVENT_MALFORMED")
}

func TestPostChange_MissingEntity(t *testing.T) {
	router := newTestRouter(t, memory.New(memory.Options{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/changes",
		strings.NewReader(`{"change_id": "chg-3", "tenant_id": "tenant-1"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
