package parse

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/golang/glog"
)

// UserClassName is the fixed backend class for authenticated principals.
const UserClassName = "_User"

const sessionTokenKey = "sessionToken"

// User is an Object of the fixed `_User` class with credential fields.
// The password only ever travels client to server; it is never round
// tripped back. A user is authenticated iff it holds a session token.
type User struct {
	Object

	password     string
	sessionToken string
}

func newUser(client *Client) *User {
	u := &User{}
	u.client = client
	u.className = UserClassName
	u.properties = map[string]Value{}
	u.pendingChanges = map[string]Value{}
	return u
}

func newUserWithId(client *Client, objectId string) *User {
	u := newUser(client)
	u.objectId = objectId
	return u
}

// NewUser creates a local unauthenticated user.
func (self *Client) NewUser() *User {
	return newUser(self)
}

func (self *Client) NewUserWithId(objectId string) *User {
	if objectId == "" {
		glog.Warningf("[user]cannot create a user handle without an id\n")
		return nil
	}
	return newUserWithId(self, objectId)
}

// EstablishNewUser creates a fresh unauthenticated user and immediately
// installs it as the current user, before any sign-up round trip. The
// identity slot is occupied optimistically; a failed sign-up leaves the
// unauthenticated user in place.
func (self *Client) EstablishNewUser() *User {
	user := newUser(self)
	self.setCurrentUser(user)
	return user
}

func (self *User) Username() string {
	return self.Get("username").String()
}

func (self *User) SetUsername(username string) {
	self.Set("username", String(username))
}

func (self *User) Email() string {
	return self.Get("email").String()
}

func (self *User) SetEmail(email string) {
	self.Set("email", String(email))
}

func (self *User) SetPassword(password string) {
	self.password = password
}

func (self *User) SessionToken() string {
	return self.sessionToken
}

func (self *User) IsAuthenticated() bool {
	return self.sessionToken != ""
}

// parseUserFields parses server state, additionally stripping the session
// token out of the property bag into its field.
func (self *User) parseUserFields(wire map[string]any) {
	self.parseFields(wire)

	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	if sessionToken, ok := wire[sessionTokenKey].(string); ok && sessionToken != "" {
		self.sessionToken = sessionToken
	}
	delete(self.properties, sessionTokenKey)
}

type UserCallback apiCallback[*User]

var emailValidate = validator.New()

func (self *User) signUpPreconditions() bool {
	if self.objectId != "" {
		glog.Warningf("[user]sign up rejected: user already persisted\n")
		return false
	}
	if self.Username() == "" {
		glog.Warningf("[user]sign up rejected: username missing\n")
		return false
	}
	if self.password == "" {
		glog.Warningf("[user]sign up rejected: password missing\n")
		return false
	}
	if email := self.Email(); email != "" {
		if err := emailValidate.Var(email, "email"); err != nil {
			glog.Warningf("[user]sign up rejected: invalid email %q\n", email)
			return false
		}
	}
	return true
}

// SignUp registers the user with the backend. On success the server
// assigns an id and a session token and the user becomes current. The wire
// body is snapshotted before the hand off, like Object.Save.
func (self *User) SignUp(callback UserCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*User]()
	}
	if !self.signUpPreconditions() {
		return false
	}
	if !self.begin(&self.saving, "saving") {
		return false
	}
	body, err := self.signUpRequest()
	if err != nil {
		self.end(&self.saving)
		glog.Warningf("[user]sign up rejected: %s\n", err)
		callback.Result(self, err)
		return true
	}
	go HandleError(func() {
		self.runSignUp(body, callback)
	})
	return true
}

func (self *User) SignUpSync() (bool, error) {
	if !self.signUpPreconditions() {
		return false, nil
	}
	if !self.begin(&self.saving, "saving") {
		return false, nil
	}
	body, err := self.signUpRequest()
	if err != nil {
		self.end(&self.saving)
		glog.Warningf("[user]sign up rejected: %s\n", err)
		return false, err
	}
	err = self.runSignUp(body, NewNoopApiCallback[*User]())
	return err == nil, err
}

func (self *User) signUpRequest() (map[string]any, error) {
	body, err := mapToWire(self.properties)
	if err != nil {
		return nil, err
	}
	body["password"] = self.password
	return body, nil
}

func (self *User) runSignUp(body map[string]any, callback UserCallback) error {
	defer self.end(&self.saving)

	result, err := post(self.client.ctx, self.client, "/1/users", body, map[string]any{}, NewNoopApiCallback[map[string]any]())
	if err == nil {
		self.applySaveSuccess(false, result)
		if sessionToken, ok := result[sessionTokenKey].(string); ok {
			self.stateMutex.Lock()
			self.sessionToken = sessionToken
			self.stateMutex.Unlock()
		}
		self.client.setCurrentUser(self)
		logUser("signed up %s", self.Username())
	}
	callback.Result(self, err)
	return err
}

// LogIn authenticates against the backend and installs the user as
// current on success.
func (self *Client) LogIn(username string, password string, callback UserCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*User]()
	}
	if username == "" || password == "" {
		glog.Warningf("[user]log in rejected: username and password required\n")
		return false
	}
	go HandleError(func() {
		self.runLogIn(username, password, callback)
	})
	return true
}

func (self *Client) LogInSync(username string, password string) (*User, error) {
	if username == "" || password == "" {
		glog.Warningf("[user]log in rejected: username and password required\n")
		return nil, nil
	}
	return self.runLogIn(username, password, NewNoopApiCallback[*User]())
}

func (self *Client) runLogIn(username string, password string, callback UserCallback) (*User, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("password", password)
	path := fmt.Sprintf("/1/login?%s", query.Encode())

	result, err := get(self.ctx, self, path, map[string]any{}, NewNoopApiCallback[map[string]any]())
	if err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	user := newUser(self)
	user.parseUserFields(result)
	self.setCurrentUser(user)
	logUser("logged in %s", username)
	callback.Result(user, nil)
	return user, nil
}

type PasswordResetCallback apiCallback[bool]

// RequestPasswordReset asks the backend to mail a reset link.
func (self *Client) RequestPasswordReset(email string, callback PasswordResetCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[bool]()
	}
	if err := emailValidate.Var(email, "required,email"); err != nil {
		glog.Warningf("[user]password reset rejected: invalid email %q\n", email)
		return false
	}
	go HandleError(func() {
		self.runRequestPasswordReset(email, callback)
	})
	return true
}

func (self *Client) RequestPasswordResetSync(email string) (bool, error) {
	if err := emailValidate.Var(email, "required,email"); err != nil {
		glog.Warningf("[user]password reset rejected: invalid email %q\n", email)
		return false, nil
	}
	err := self.runRequestPasswordReset(email, NewNoopApiCallback[bool]())
	return err == nil, err
}

func (self *Client) runRequestPasswordReset(email string, callback PasswordResetCallback) error {
	body := map[string]any{
		"email": email,
	}
	_, err := post(self.ctx, self, "/1/requestPasswordReset", body, map[string]any{}, NewNoopApiCallback[map[string]any]())
	callback.Result(err == nil, err)
	return err
}

var logUser = LogFn(1, "[user]")
