package parse

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestSaveAll(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		bodyBytes, _ := io.ReadAll(r.Body)
		json.Unmarshal(bodyBytes, &gotBody)
		w.Write([]byte(`[
			{"success": {"objectId": "id-a", "createdAt": "2020-01-01T00:00:00.000Z"}},
			{"success": {"updatedAt": "2020-02-01T00:00:00.000Z"}}
		]`))
	}))
	client := newTestClient(t, server)

	a := client.NewObject("Level")
	a.Set("name", String("Act I"))
	b := client.NewObjectWithId("Level", "id-b")
	b.properties["score"] = Int(1)
	b.Set("score", Int(2))

	ok, err := client.SaveAllSync([]*Object{a, b})
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	assert.Equal(t, gotPath, "/1/batch")
	requests := gotBody["requests"].([]any)
	assert.Equal(t, len(requests), 2)
	first := requests[0].(map[string]any)
	assert.Equal(t, first["method"], "POST")
	assert.Equal(t, first["path"], "/1/classes/Level")
	second := requests[1].(map[string]any)
	assert.Equal(t, second["method"], "PUT")
	assert.Equal(t, second["path"], "/1/classes/Level/id-b")
	assert.Equal(t, second["body"], map[string]any{"score": float64(2)})

	assert.Equal(t, a.Id(), "id-a")
	assert.Equal(t, a.CreatedAt().String(), "2020-01-01T00:00:00.000Z")
	assert.Equal(t, b.UpdatedAt().String(), "2020-02-01T00:00:00.000Z")
	assert.Equal(t, len(b.pendingChanges), 0)
	assert.Equal(t, a.IsSaving(), false)
	assert.Equal(t, b.IsSaving(), false)
}

func TestSaveAllPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"success": {"objectId": "id-a", "createdAt": "2020-01-01T00:00:00.000Z"}},
			{"error": {"code": 111, "error": "invalid field value"}}
		]`))
	}))
	client := newTestClient(t, server)

	a := client.NewObject("Level")
	a.Set("name", String("Act I"))
	b := client.NewObject("Level")
	b.Set("score", String("not a number"))

	ok, err := client.SaveAllSync([]*Object{a, b})
	assert.Equal(t, ok, false)

	// successful items still apply even though the batch as a whole failed
	assert.Equal(t, a.Id(), "id-a")
	assert.Equal(t, b.Id(), "")

	parseErr := err.(*Error)
	assert.Equal(t, parseErr.Code, ErrorIncorrectType)
	assert.Equal(t, parseErr.Message, "invalid field value")
}

func TestSaveAllAdmission(t *testing.T) {
	client := newOfflineClient(t)

	a := client.NewObject("Level")
	b := client.NewObject("Level")
	c := client.NewObject("Level")
	b.saving = true

	// one busy object rejects the whole batch; flags set before the busy
	// object are rolled back, objects after it are never touched
	ok, err := client.SaveAllSync([]*Object{a, b, c})
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, a.IsSaving(), false)
	assert.Equal(t, b.IsSaving(), true)
	assert.Equal(t, c.IsSaving(), false)

	// a single-object save admitted on one of the members blocks the batch
	b.saving = false
	a.saving = true
	ok, err = client.SaveAllSync([]*Object{a, b, c})
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, b.IsSaving(), false)
	assert.Equal(t, c.IsSaving(), false)
}

func TestSaveAllCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"success": {"objectId": "id-a"}}]`))
	}))
	client := newTestClient(t, server)

	a := client.NewObject("Level")
	b := client.NewObject("Level")

	ok, err := client.SaveAllSync([]*Object{a, b})
	assert.Equal(t, ok, false)
	parseErr := err.(*Error)
	assert.Equal(t, parseErr.Code, ErrorInvalidJson)
}

func TestDeleteAll(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyBytes, _ := io.ReadAll(r.Body)
		json.Unmarshal(bodyBytes, &gotBody)
		w.Write([]byte(`[{"success": {}}, {"success": {}}]`))
	}))
	client := newTestClient(t, server)

	a := client.NewObjectWithId("Level", "id-a")
	b := client.NewObjectWithId("Level", "id-b")

	ok, err := client.DeleteAllSync([]*Object{a, b})
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	requests := gotBody["requests"].([]any)
	first := requests[0].(map[string]any)
	assert.Equal(t, first["method"], "DELETE")
	assert.Equal(t, first["path"], "/1/classes/Level/id-a")

	assert.Equal(t, a.IsNew(), true)
	assert.Equal(t, b.IsNew(), true)
}

func TestSaveAllCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"success": {"objectId": "id-a", "createdAt": "2020-01-01T00:00:00.000Z"}}]`))
	}))
	client := newTestClient(t, server)

	a := client.NewObject("Level")
	a.Set("name", String("Act I"))

	callback, c := NewBlockingApiCallback[[]*Object]()
	admitted := client.SaveAll([]*Object{a}, callback)
	assert.Equal(t, admitted, true)

	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, result.Result[0].Id(), "id-a")
}

func TestFetchAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objectId": "id", "score": 5}`))
	}))
	client := newTestClient(t, server)

	a := client.NewObjectWithId("Level", "id-a")
	b := client.NewObjectWithId("Level", "id-b")

	ok, err := client.FetchAllSync([]*Object{a, b})
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, a.Get("score").Float(), 5.0)
	assert.Equal(t, b.Get("score").Float(), 5.0)
}

func TestFetchAllIfNeeded(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount += 1
		w.Write([]byte(`{"objectId": "id", "score": 5}`))
	}))
	client := newTestClient(t, server)

	fetched := client.NewObjectWithId("Level", "id-a")
	fetched.parseFields(map[string]any{"objectId": "id-a", "score": float64(1)})
	stale := client.NewObjectWithId("Level", "id-b")

	ok, err := client.FetchAllIfNeededSync([]*Object{fetched, stale})
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, requestCount, 1)
	assert.Equal(t, fetched.Get("score").Float(), 1.0)
	assert.Equal(t, stale.Get("score").Float(), 5.0)
}
