package parse

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestUserSignUp(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	sessionHeaders := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionHeaders = append(sessionHeaders, r.Header.Get("X-Parse-Session-Token"))
		switch r.URL.Path {
		case "/1/users":
			gotMethod = r.Method
			gotPath = r.URL.Path
			bodyBytes, _ := io.ReadAll(r.Body)
			json.Unmarshal(bodyBytes, &gotBody)
			w.WriteHeader(201)
			w.Write([]byte(`{"objectId":"u1","createdAt":"2020-01-01T00:00:00.000Z","sessionToken":"session-1"}`))
		default:
			w.Write([]byte(`{"objectId":"id"}`))
		}
	}))
	client := newTestClient(t, server)

	user := client.NewUser()
	user.SetUsername("ann")
	user.SetPassword("secret")
	user.SetEmail("ann@example.com")

	ok, err := user.SignUpSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)

	assert.Equal(t, gotMethod, "POST")
	assert.Equal(t, gotPath, "/1/users")
	// the password travels in the body, never stored as a property
	assert.Equal(t, gotBody["password"], "secret")
	assert.Equal(t, gotBody["username"], "ann")
	assert.Equal(t, user.Has("password"), false)

	assert.Equal(t, user.Id(), "u1")
	assert.Equal(t, user.SessionToken(), "session-1")
	assert.Equal(t, user.IsAuthenticated(), true)
	assert.Equal(t, client.CurrentUser(), user)

	// the session token is stripped from the property bag
	assert.Equal(t, user.Has("sessionToken"), false)

	// and the token rides along on subsequent requests
	o := client.NewObjectWithId("Level", "abc")
	o.FetchSync()
	assert.Equal(t, sessionHeaders[len(sessionHeaders)-1], "session-1")
}

func TestUserSignUpPreconditions(t *testing.T) {
	client := newOfflineClient(t)

	// no username
	user := client.NewUser()
	user.SetPassword("secret")
	ok, err := user.SignUpSync()
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)

	// no password
	user = client.NewUser()
	user.SetUsername("ann")
	ok, _ = user.SignUpSync()
	assert.Equal(t, ok, false)

	// malformed email
	user = client.NewUser()
	user.SetUsername("ann")
	user.SetPassword("secret")
	user.SetEmail("not-an-email")
	ok, _ = user.SignUpSync()
	assert.Equal(t, ok, false)

	// already persisted
	user = client.NewUserWithId("u1")
	user.SetUsername("ann")
	user.SetPassword("secret")
	ok, _ = user.SignUpSync()
	assert.Equal(t, ok, false)
}

func TestUserSignUpFailureLeavesSlot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"code":202,"error":"username already taken"}`))
	}))
	client := newTestClient(t, server)

	user := client.EstablishNewUser()
	user.SetUsername("ann")
	user.SetPassword("secret")

	// the identity slot was occupied optimistically
	assert.Equal(t, client.CurrentUser(), user)

	ok, err := user.SignUpSync()
	assert.Equal(t, ok, false)
	parseErr := err.(*Error)
	assert.Equal(t, parseErr.Code, ErrorUsernameTaken)

	// a failed sign-up leaves the unauthenticated user in place
	assert.Equal(t, client.CurrentUser(), user)
	assert.Equal(t, user.IsAuthenticated(), false)
}

func TestLogIn(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{
			"objectId": "u1",
			"username": "ann",
			"createdAt": "2020-01-01T00:00:00.000Z",
			"sessionToken": "session-1"
		}`))
	}))
	client := newTestClient(t, server)

	user, err := client.LogInSync("ann", "secret")
	assert.Equal(t, err, nil)
	assert.NotEqual(t, user, nil)

	assert.Equal(t, gotQuery["username"], []string{"ann"})
	assert.Equal(t, gotQuery["password"], []string{"secret"})

	assert.Equal(t, user.Id(), "u1")
	assert.Equal(t, user.Username(), "ann")
	assert.Equal(t, user.SessionToken(), "session-1")
	assert.Equal(t, user.IsAuthenticated(), true)
	assert.Equal(t, client.CurrentUser(), user)
}

func TestLogInPreconditions(t *testing.T) {
	client := newOfflineClient(t)

	user, err := client.LogInSync("", "secret")
	assert.Equal(t, user, nil)
	assert.Equal(t, err, nil)

	user, err = client.LogInSync("ann", "")
	assert.Equal(t, user, nil)
	assert.Equal(t, err, nil)

	assert.Equal(t, client.LogIn("", "", nil), false)
}

func TestLogInFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"code":101,"error":"invalid login parameters"}`))
	}))
	client := newTestClient(t, server)

	user, err := client.LogInSync("ann", "wrong")
	assert.Equal(t, user, nil)
	parseErr := err.(*Error)
	assert.Equal(t, parseErr.Code, ErrorObjectNotFound)
	assert.Equal(t, client.CurrentUser(), nil)
}

func TestLogOut(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"objectId":"u1","sessionToken":"session-1"}`))
	}))
	client := newTestClient(t, server)

	user, _ := client.LogInSync("ann", "secret")
	assert.Equal(t, user.IsAuthenticated(), true)

	client.LogOut()
	assert.Equal(t, client.CurrentUser(), nil)
	assert.Equal(t, user.IsAuthenticated(), false)
}

func TestRequestPasswordReset(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		bodyBytes, _ := io.ReadAll(r.Body)
		json.Unmarshal(bodyBytes, &gotBody)
		w.Write([]byte(`{}`))
	}))
	client := newTestClient(t, server)

	ok, err := client.RequestPasswordResetSync("ann@example.com")
	assert.Equal(t, err, nil)
	assert.Equal(t, ok, true)
	assert.Equal(t, gotPath, "/1/requestPasswordReset")
	assert.Equal(t, gotBody, map[string]any{"email": "ann@example.com"})

	// a malformed email never leaves the client
	ok, err = client.RequestPasswordResetSync("not-an-email")
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
	assert.Equal(t, client.RequestPasswordReset("", nil), false)
}
