package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveline/internal/config"
	"liveline/internal/http/handler"
	"liveline/internal/models"
	"liveline/internal/queue"
	"liveline/internal/realtime"
	"liveline/internal/store/memory"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type testServer struct {
	App    *fiber.App
	Engine *queue.Engine
	Broker *realtime.Broker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	broker := realtime.NewBroker(nil)
	eng := queue.New(memory.New(), queue.Options{Publisher: broker})
	signer := config.NewTicketSigner("test-secret", time.Hour)

	app := fiber.New(fiber.Config{Immutable: true})
	handler.New(eng, broker, signer, nil).Register(app)
	return &testServer{App: app, Engine: eng, Broker: broker}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.App.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func (s *testServer) createQueue(t *testing.T, settings *models.QueueSettings) models.Queue {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/queues", models.CreateQueueRequest{
		OwnerID:  "owner-1",
		Name:     "Front desk",
		Settings: settings,
	}, "")
	require.Equal(t, http.StatusCreated, status, env.Error)
	return decode[models.Queue](t, env.Data)
}

type joined struct {
	Visitor models.Visitor `json:"visitor"`
	Token   string         `json:"token"`
	Ahead   int            `json:"ahead"`
}

func (s *testServer) join(t *testing.T, queueID, name string) joined {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/queues/"+queueID+"/join", models.JoinRequest{Name: name}, "")
	require.Equal(t, http.StatusCreated, status, env.Error)
	return decode[joined](t, env.Data)
}

func TestCreateAndFetchQueue(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)
	assert.Len(t, q.JoinCode, 6)
	assert.Equal(t, models.QueueActive, q.Status)
	assert.Equal(t, 2, q.GracePeriodMinutes)

	status, env := s.do(t, http.MethodGet, "/api/queues/"+q.ID, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, q.ID, decode[models.Queue](t, env.Data).ID)

	status, env = s.do(t, http.MethodGet, "/api/queues/code/"+q.JoinCode, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, q.ID, decode[models.Queue](t, env.Data).ID)

	status, env = s.do(t, http.MethodGet, "/api/queues/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}

func TestCreateQueueValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		req  models.CreateQueueRequest
		want int
	}{
		{"missing owner", models.CreateQueueRequest{Name: "A"}, http.StatusBadRequest},
		{"missing name", models.CreateQueueRequest{OwnerID: "o"}, http.StatusBadRequest},
		{"bad clock", models.CreateQueueRequest{OwnerID: "o", Name: "A", Settings: &models.QueueSettings{
			GracePeriodMinutes: 2, OpenTime: "25:00", CloseTime: "17:00",
		}}, http.StatusBadRequest},
		{"zero grace", models.CreateQueueRequest{OwnerID: "o", Name: "A", Settings: &models.QueueSettings{}}, http.StatusBadRequest},
		{"short clock accepted", models.CreateQueueRequest{OwnerID: "o", Name: "A", Settings: &models.QueueSettings{
			GracePeriodMinutes: 2, OpenTime: "09:00", CloseTime: "17:00", Timezone: "UTC",
		}}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.do(t, http.MethodPost, "/api/queues", tt.req, "")
			assert.Equal(t, tt.want, status, env.Error)
		})
	}
}

func TestTicketFlow(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	first := s.join(t, q.ID, "Ana")
	second := s.join(t, q.ID, "Budi")
	assert.NotEmpty(t, first.Token)
	assert.Equal(t, int64(2), second.Visitor.TicketNumber)
	assert.Equal(t, 1, second.Ahead)

	status, env := s.do(t, http.MethodGet, "/api/ticket", nil, second.Token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decode[joined](t, env.Data).Ahead)

	status, env = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call-next", models.CallNextRequest{Counter: "Counter1"}, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	called := decode[models.Visitor](t, env.Data)
	assert.Equal(t, first.Visitor.ID, called.ID)
	assert.Equal(t, models.StatusServing, called.Status)
	assert.True(t, called.IsAlerting)

	status, env = s.do(t, http.MethodPost, "/api/ticket/confirm", nil, first.Token)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.False(t, decode[models.Visitor](t, env.Data).IsAlerting)

	status, _ = s.do(t, http.MethodPost, "/api/ticket/feedback", models.FeedbackRequest{Rating: 5}, first.Token)
	assert.Equal(t, http.StatusConflict, status)

	status, env = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/complete", nil, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, models.StatusServed, decode[models.Visitor](t, env.Data).Status)

	status, _ = s.do(t, http.MethodPost, "/api/ticket/feedback", models.FeedbackRequest{Rating: 9}, first.Token)
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.do(t, http.MethodPost, "/api/ticket/feedback", models.FeedbackRequest{Rating: 4, Feedback: "quick"}, first.Token)
	require.Equal(t, http.StatusOK, status, env.Error)
	rated := decode[models.Visitor](t, env.Data)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 4, *rated.Rating)

	status, _ = s.do(t, http.MethodPost, "/api/ticket/leave", nil, first.Token)
	assert.Equal(t, http.StatusConflict, status)

	status, env = s.do(t, http.MethodPost, "/api/ticket/leave", nil, second.Token)
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, models.StatusCancelled, decode[models.Visitor](t, env.Data).Status)
}

func TestTicketRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/ticket", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = s.do(t, http.MethodPost, "/api/ticket/leave", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestEmptyResultsAreNotErrors(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	for _, path := range []string{"/call-next", "/take-back", "/complete"} {
		status, env := s.do(t, http.MethodPost, "/api/queues/"+q.ID+path, nil, "")
		assert.Equal(t, http.StatusOK, status, path)
		assert.True(t, env.Success, path)
		assert.Equal(t, "null", string(env.Data), path)
		assert.NotEmpty(t, env.Message, path)
	}
}

func TestJoinFailures(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	status, _ := s.do(t, http.MethodPost, "/api/queues/missing/join", models.JoinRequest{Name: "A"}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/join", models.JoinRequest{Name: "  "}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := s.do(t, http.MethodPut, "/api/queues/"+q.ID+"/pause", models.PauseQueueRequest{Paused: true}, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, models.QueuePaused, decode[models.Queue](t, env.Data).Status)

	status, env = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/join", models.JoinRequest{Name: "A"}, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, env.Error, "paused")
}

func TestJoinByCode(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	status, env := s.do(t, http.MethodPost, "/api/join/"+q.JoinCode, models.JoinRequest{Name: "Ana"}, "")
	require.Equal(t, http.StatusCreated, status, env.Error)
	assert.Equal(t, q.ID, decode[joined](t, env.Data).Visitor.QueueID)

	status, _ = s.do(t, http.MethodPost, "/api/join/ZZZZZZ", models.JoinRequest{Name: "Ana"}, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPriorityRequiresCapability(t *testing.T) {
	s := newTestServer(t)
	plain := s.createQueue(t, nil)
	settings := models.DefaultQueueSettings("VIP desk")
	settings.Capabilities.VIP = true
	vip := s.createQueue(t, &settings)

	a := s.join(t, plain.ID, "A")
	status, _ := s.do(t, http.MethodPut, "/api/queues/"+plain.ID+"/visitors/"+a.Visitor.ID+"/priority", models.PriorityRequest{IsPriority: true}, "")
	assert.Equal(t, http.StatusForbidden, status)

	s.join(t, vip.ID, "B")
	c := s.join(t, vip.ID, "C")

	// visitor ids are scoped to the queue in the path
	status, _ = s.do(t, http.MethodPut, "/api/queues/"+vip.ID+"/visitors/"+a.Visitor.ID+"/priority", models.PriorityRequest{IsPriority: true}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env := s.do(t, http.MethodPut, "/api/queues/"+vip.ID+"/visitors/"+c.Visitor.ID+"/priority", models.PriorityRequest{IsPriority: true}, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.True(t, decode[models.Visitor](t, env.Data).IsPriority)

	status, env = s.do(t, http.MethodGet, "/api/queues/"+vip.ID+"/snapshot", nil, "")
	require.Equal(t, http.StatusOK, status)
	snap := decode[struct {
		Waiting []models.Visitor `json:"waiting"`
	}](t, env.Data)
	require.Len(t, snap.Waiting, 2)
	assert.Equal(t, c.Visitor.ID, snap.Waiting[0].ID)
}

func TestReorderAndRemove(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)
	a := s.join(t, q.ID, "A")
	b := s.join(t, q.ID, "B")
	c := s.join(t, q.ID, "C")

	status, env := s.do(t, http.MethodPut, "/api/queues/"+q.ID+"/order", models.ReorderRequest{
		VisitorIDs: []string{c.Visitor.ID, a.Visitor.ID, b.Visitor.ID},
	}, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	waiting := decode[[]models.Visitor](t, env.Data)
	require.Len(t, waiting, 3)
	assert.Equal(t, []string{c.Visitor.ID, a.Visitor.ID, b.Visitor.ID},
		[]string{waiting[0].ID, waiting[1].ID, waiting[2].ID})

	status, _ = s.do(t, http.MethodPut, "/api/queues/"+q.ID+"/order", models.ReorderRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/queues/"+q.ID+"/visitors/"+a.Visitor.ID, nil, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/api/queues/"+q.ID+"/visitors/"+a.Visitor.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/clear", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"cancelled":2}`, string(env.Data))
}

func TestCallByNumberAndRecall(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)
	s.join(t, q.ID, "A")
	b := s.join(t, q.ID, "B")

	status, env := s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call", models.CallByNumberRequest{TicketNumber: 2}, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.Equal(t, b.Visitor.ID, decode[models.Visitor](t, env.Data).ID)

	status, _ = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call", models.CallByNumberRequest{TicketNumber: 0}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/call", models.CallByNumberRequest{TicketNumber: 99}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPost, "/api/queues/"+q.ID+"/visitors/"+b.Visitor.ID+"/recall", nil, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	assert.True(t, decode[models.Visitor](t, env.Data).IsAlerting)
}

func TestSettingsMetricsAndActivity(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	settings := models.DefaultQueueSettings("Renamed")
	settings.DefaultServiceMinutes = 7
	status, env := s.do(t, http.MethodPut, "/api/queues/"+q.ID+"/settings", settings, "")
	require.Equal(t, http.StatusOK, status, env.Error)
	updated := decode[models.Queue](t, env.Data)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, q.JoinCode, updated.JoinCode)

	s.join(t, q.ID, "A")
	s.join(t, q.ID, "B")

	status, env = s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/metrics", nil, "")
	require.Equal(t, http.StatusOK, status)
	m := decode[struct {
		WaitingCount   int   `json:"waiting_count"`
		Estimated      bool  `json:"estimated"`
		AvgWaitSeconds int64 `json:"avg_wait_seconds"`
	}](t, env.Data)
	assert.Equal(t, 2, m.WaitingCount)
	assert.True(t, m.Estimated)
	assert.Equal(t, int64(7*60), m.AvgWaitSeconds)

	status, env = s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/activity?limit=1", nil, "")
	require.Equal(t, http.StatusOK, status)
	logs := decode[[]models.ActivityLogEntry](t, env.Data)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionJoin, logs[0].Action)

	status, _ = s.do(t, http.MethodGet, "/api/queues/"+q.ID+"/activity?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeleteQueue(t *testing.T) {
	s := newTestServer(t)
	q := s.createQueue(t, nil)

	status, _ := s.do(t, http.MethodDelete, "/api/queues/"+q.ID, nil, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/api/queues/"+q.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}
