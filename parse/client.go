package parse

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
)

// Client is the composition root for one application: credentials, the
// http transport, the current authenticated user, and the default ACL.
// It is meant to be created once at startup and passed by handle into
// everything that talks to the backend. Tests swap the transport with
// SetHttpClient.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	config *Config

	// guards currentUser, defaultAcl, and the http client handle.
	// never held across a network call
	mutex sync.Mutex

	client *http.Client

	currentUser *User

	defaultAcl               *Acl
	defaultAclForCurrentUser bool
}

func NewClient(config *Config) (*Client, error) {
	return NewClientWithContext(context.Background(), config)
}

func NewClientWithContext(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	cancelCtx, cancel := context.WithCancel(ctx)
	return &Client{
		ctx:    cancelCtx,
		cancel: cancel,
		config: config,
		client: defaultHttpClient(config),
	}, nil
}

// Close cancels all in-flight requests started through this client.
func (self *Client) Close() {
	self.cancel()
}

func (self *Client) Config() *Config {
	return self.config
}

func (self *Client) SetHttpClient(client *http.Client) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.client = client
}

func (self *Client) httpClient() *http.Client {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.client
}

func (self *Client) apiUrl(path string) string {
	return strings.TrimSuffix(self.config.ServerUrl, "/") + path
}

func (self *Client) addAuthHeaders(req *http.Request) {
	req.Header.Add(headerApplicationId, self.config.ApplicationId)
	req.Header.Add(headerRestApiKey, self.config.RestApiKey)
	if sessionToken := self.sessionToken(); sessionToken != "" {
		req.Header.Add(headerSessionToken, sessionToken)
	}
}

func (self *Client) sessionToken() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.currentUser == nil {
		return ""
	}
	return self.currentUser.sessionToken
}

// CurrentUser returns the user occupying the process-wide identity slot,
// or nil.
func (self *Client) CurrentUser() *User {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.currentUser
}

func (self *Client) setCurrentUser(user *User) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.currentUser = user
}

// LogOut clears the identity slot unconditionally. No server round trip.
func (self *Client) LogOut() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.currentUser != nil {
		self.currentUser.sessionToken = ""
	}
	self.currentUser = nil
}

// SetDefaultAcl configures an ACL cloned onto every object created
// without a known id. With forCurrentUser set, the clone additionally
// grants read and write to the authenticated user at creation time.
func (self *Client) SetDefaultAcl(acl *Acl, forCurrentUser bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.defaultAcl = acl
	self.defaultAclForCurrentUser = forCurrentUser
}

func (self *Client) defaultAclClone() *Acl {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.defaultAcl == nil {
		return nil
	}
	acl := self.defaultAcl.Clone()
	if self.defaultAclForCurrentUser && self.currentUser != nil && self.currentUser.IsAuthenticated() {
		acl.SetReadAccessForUser(true, self.currentUser)
		acl.SetWriteAccessForUser(true, self.currentUser)
	}
	return acl
}

// cacheFilePath resolves the local cache location for downloaded file
// data, keyed by the remote file name.
func (self *Client) cacheFilePath(name string) (string, error) {
	if self.config.CacheDir != "" {
		return filepath.Join(self.config.CacheDir, filepath.Base(name)), nil
	}
	return xdg.CacheFile(filepath.Join("parse-go", "files", filepath.Base(name)))
}
