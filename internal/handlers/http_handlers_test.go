package handlers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventwall/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, rand func() float64) (*gin.Engine, *services.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := services.NewEngine(services.Options{Rand: rand})
	router := gin.New()
	NewHTTPHandler(engine, StreamOptions{Buffer: 16, Heartbeat: time.Hour}).RegisterRoutes(router)
	return router, engine
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func createActive(t *testing.T, router http.Handler, kind string, body map[string]any) map[string]any {
	t.Helper()
	body["title"] = "Launch " + kind
	body["status"] = "active"
	w := do(t, router, http.MethodPost, "/api/"+kind, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestCheckinFlow(t *testing.T) {
	router, _ := setupRouter(t, nil)
	act := createActive(t, router, "checkin", map[string]any{
		"config": map[string]any{"fields": []map[string]any{{"name": "department", "required": true}}},
	})
	id := act["id"].(string)
	code := act["code"].(string)

	w := do(t, router, http.MethodGet, "/api/checkin/code/"+code, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = do(t, router, http.MethodPost, "/api/checkin/"+id+"/submit", map[string]any{"phone": "13800000001"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "department", decode(t, w)["field"])

	w = do(t, router, http.MethodPost, "/api/checkin/"+id+"/submit", map[string]any{
		"phone": "13800000001", "name": "Lin", "department": "R&D",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	record := decode(t, w)["record"].(map[string]any)
	verify, _ := record["verifyCode"].(string)
	assert.Len(t, verify, 3)

	w = do(t, router, http.MethodPost, "/api/checkin/"+id+"/submit", map[string]any{
		"phone": "13800000001", "department": "Sales",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "verify_code_required", decode(t, w)["code"])

	w = do(t, router, http.MethodPost, "/api/checkin/"+id+"/submit", map[string]any{
		"phone": "13800000001", "department": "Sales", "verifyCode": verify,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["isUpdate"])

	w = do(t, router, http.MethodGet, "/api/checkin/"+id+"/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "verifyCode")

	w = do(t, router, http.MethodGet, "/api/checkin/"+id+"/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.EqualValues(t, 1, stats["total"])
	assert.Equal(t, map[string]any{"Sales": float64(1)}, stats["byDepartment"])
}

func TestErrorStatuses(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := do(t, router, http.MethodGet, "/api/vote/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodPost, "/api/vote", map[string]any{"title": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	draft := do(t, router, http.MethodPost, "/api/form", map[string]any{"title": "Survey"})
	require.Equal(t, http.StatusCreated, draft.Code)
	id := decode(t, draft)["id"].(string)
	w = do(t, router, http.MethodPost, "/api/form/"+id+"/submit", map[string]any{"phone": "13800000001"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decode(t, w)["code"])
}

func TestVoteFlow(t *testing.T) {
	router, _ := setupRouter(t, nil)
	act := createActive(t, router, "vote", map[string]any{
		"config":  map[string]any{"voteType": "single"},
		"options": []string{"Red", "Blue"},
	})
	id := act["id"].(string)

	w := do(t, router, http.MethodPost, "/api/vote/"+id+"/submit", map[string]any{"optionIds": []string{"9"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_option", decode(t, w)["code"])

	w = do(t, router, http.MethodPost, "/api/vote/"+id+"/submit", map[string]any{"optionIds": []string{"1", "2"}})
	assert.Equal(t, "cardinality", decode(t, w)["code"])

	w = do(t, router, http.MethodPost, "/api/vote/"+id+"/submit", map[string]any{"optionIds": []string{"2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/vote/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	options := res["options"].([]any)
	require.Len(t, options, 2)
	assert.EqualValues(t, 0, options[0].(map[string]any)["count"])
	assert.EqualValues(t, 1, options[1].(map[string]any)["count"])
}

func TestLotteryDrawAndLimit(t *testing.T) {
	router, _ := setupRouter(t, func() float64 { return 0 })
	act := createActive(t, router, "lottery", map[string]any{
		"config": map[string]any{"maxDrawsPerUser": 1, "requirePhone": true},
		"prizes": []map[string]any{{"name": "Grand", "count": 1, "probability": 50}},
	})
	id := act["id"].(string)

	w := do(t, router, http.MethodPost, "/api/lottery/"+id+"/draw", map[string]any{"phone": "13800000001"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["win"])

	w = do(t, router, http.MethodPost, "/api/lottery/"+id+"/draw", map[string]any{"phone": "13800000001"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, router, http.MethodGet, "/api/lottery/"+id+"/remaining?phone=13800000001", nil)
	assert.EqualValues(t, 0, decode(t, w)["remainingDraws"])

	w = do(t, router, http.MethodPost, "/api/lottery/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/api/lottery/"+id+"/prizes", nil)
	var prizes []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prizes))
	require.Len(t, prizes, 1)
	assert.EqualValues(t, 1, prizes[0]["remaining"])
}

func TestAnonymousDrawWithoutBody(t *testing.T) {
	router, _ := setupRouter(t, func() float64 { return 0 })
	act := createActive(t, router, "lottery", map[string]any{
		"config": map[string]any{"maxDrawsPerUser": 1},
		"prizes": []map[string]any{{"name": "Grand", "count": 2, "probability": 50}},
	})
	id := act["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/lottery/"+id+"/draw", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decode(t, w)["win"])

	w = do(t, router, http.MethodPost, "/api/lottery/"+id+"/draw", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/lottery/"+id+"/draw", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	router, _ := setupRouter(t, nil)
	act := createActive(t, router, "form", map[string]any{
		"config": map[string]any{"fields": []map[string]any{{"name": "size", "type": "text"}}},
	})
	id := act["id"].(string)

	w := do(t, router, http.MethodPatch, "/api/form/"+id, map[string]any{"status": "draft"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPatch, "/api/form/"+id, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(t, router, http.MethodPatch, "/api/form/"+id, map[string]any{"status": "paused"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "paused", decode(t, w)["status"])

	w = do(t, router, http.MethodGet, "/api/form", nil)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(t, router, http.MethodDelete, "/api/form/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, http.MethodDelete, "/api/form/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStream(t *testing.T) {
	router, engine := setupRouter(t, nil)
	srv := httptest.NewServer(router)
	defer srv.Close()

	act := createActive(t, router, "checkin", map[string]any{})
	id := act["id"].(string)

	resp, err := http.Get(srv.URL + "/api/checkin/" + id + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event:"); ok {
				events <- strings.TrimSpace(name)
			}
		}
	}()

	next := func() string {
		select {
		case ev, ok := <-events:
			if !ok {
				return ""
			}
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for an event")
			return ""
		}
	}

	require.Equal(t, "snapshot", next())

	_, err = engine.Checkins.Submit(id, services.CheckinSubmission{Phone: "13800000001"})
	require.NoError(t, err)
	assert.Equal(t, "new", next())

	require.True(t, engine.Checkins.Delete(id))
	assert.Equal(t, "deleted", next())
	assert.Equal(t, "", next(), "stream should close after deleted")
	assert.Eventually(t, func() bool { return engine.Bus.Subscribers(id) == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamUnknownActivity(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := do(t, router, http.MethodGet, "/api/lottery/nope/stream", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := do(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}
