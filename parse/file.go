package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// File is a binary blob stored by the backend. A file starts dirty and
// stays dirty until its first successful upload; a dirty file has no remote
// identity and cannot be rendered to wire form. Downloaded bytes are kept
// in memory and persisted to a local cache directory keyed by file name.
type File struct {
	client *Client

	mutex sync.Mutex

	name     string
	mimeType string
	path     string
	url      string
	data     []byte
	dirty    bool

	uploading   bool
	downloading bool
	attempt     *transferAttempt

	progressCallbacks *CallbackList[ProgressFunction]
}

type ProgressFunction func(fraction float64)

type FileCallback apiCallback[*File]

func newFile(client *Client) *File {
	return &File{
		client:            client,
		dirty:             true,
		progressCallbacks: NewCallbackList[ProgressFunction](),
	}
}

// NewFile creates a dirty file from in-memory bytes. An empty name is
// replaced with a generated staging name at upload time.
func (self *Client) NewFile(name string, data []byte) *File {
	f := newFile(self)
	f.name = name
	f.data = data
	return f
}

// NewFileFromPath creates a dirty file whose bytes are read from disk at
// upload time.
func (self *Client) NewFileFromPath(path string) *File {
	if path == "" {
		glog.Warningf("[file]cannot create a file from an empty path\n")
		return nil
	}
	f := newFile(self)
	f.name = filepath.Base(path)
	f.path = path
	return f
}

func newFileWithUrl(client *Client, name string, url string) *File {
	f := newFile(client)
	f.name = name
	f.url = url
	f.dirty = false
	return f
}

// NewFileWithUrl creates a handle to a file already stored remotely.
func (self *Client) NewFileWithUrl(name string, url string) *File {
	if name == "" {
		glog.Warningf("[file]cannot create a file handle without a name\n")
		return nil
	}
	return newFileWithUrl(self, name, url)
}

func (self *File) Name() string {
	return self.name
}

func (self *File) Url() string {
	return self.url
}

func (self *File) MimeType() string {
	return self.mimeType
}

func (self *File) IsDirty() bool {
	return self.dirty
}

func (self *File) IsUploading() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.uploading
}

func (self *File) IsDownloading() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.downloading
}

// AddProgressListener registers a persistent progress listener, in addition
// to any per-call progress function. Returns a handle for removal.
func (self *File) AddProgressListener(listener ProgressFunction) int {
	return self.progressCallbacks.Add(listener)
}

func (self *File) RemoveProgressListener(listenerId int) {
	self.progressCallbacks.Remove(listenerId)
}

func (self *File) toWire() (map[string]any, error) {
	if self.dirty {
		return nil, fmt.Errorf("cannot reference file %q before upload", self.name)
	}
	return map[string]any{
		"__type": "File",
		"name":   self.name,
		"url":    self.url,
	}, nil
}

// IsDataAvailable reports whether the bytes can be produced without a
// network round trip: in memory, at the local source path, or in the
// download cache.
func (self *File) IsDataAvailable() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.dataAvailable()
}

func (self *File) dataAvailable() bool {
	if self.data != nil {
		return true
	}
	if self.path != "" {
		if _, err := os.Stat(self.path); err == nil {
			return true
		}
	}
	if cachePath, err := self.client.cacheFilePath(self.name); self.name != "" && err == nil {
		if _, err := os.Stat(cachePath); err == nil {
			return true
		}
	}
	return false
}

// Data returns the file bytes, reading through the source path or the
// download cache before declaring the data unavailable.
func (self *File) Data() ([]byte, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	data, err := self.loadData()
	if err != nil {
		return nil, false
	}
	return data, true
}

func (self *File) loadData() ([]byte, error) {
	if self.data != nil {
		return self.data, nil
	}
	if self.path != "" {
		data, err := os.ReadFile(self.path)
		if err == nil {
			self.data = data
			return data, nil
		}
	}
	if self.name != "" {
		cachePath, err := self.client.cacheFilePath(self.name)
		if err == nil {
			data, err := os.ReadFile(cachePath)
			if err == nil {
				self.data = data
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("no data for file %q", self.name)
}

// one upload or download in flight. Cancel detaches the attempt's callbacks
// before aborting the transport, so they never fire for a cancelled attempt
type transferAttempt struct {
	ctx    context.Context
	cancel context.CancelFunc

	mutex    sync.Mutex
	detached bool

	file     *File
	progress ProgressFunction
	callback FileCallback
}

func newTransferAttempt(file *File, progress ProgressFunction, callback FileCallback) *transferAttempt {
	cancelCtx, cancel := context.WithCancel(file.client.ctx)
	return &transferAttempt{
		ctx:      cancelCtx,
		cancel:   cancel,
		file:     file,
		progress: progress,
		callback: callback,
	}
}

func (self *transferAttempt) detach() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.detached = true
}

func (self *transferAttempt) emitProgress(fraction float64) {
	self.mutex.Lock()
	detached := self.detached
	self.mutex.Unlock()
	if detached {
		return
	}
	if self.progress != nil {
		self.progress(fraction)
	}
	for _, listener := range self.file.progressCallbacks.Get() {
		listener(fraction)
	}
}

func (self *transferAttempt) finish(err error) {
	self.mutex.Lock()
	detached := self.detached
	self.mutex.Unlock()
	if detached {
		return
	}
	self.callback.Result(self.file, err)
}

// progressReader reports the fraction of consumed bytes strictly before
// the terminal event
type progressReader struct {
	reader  io.Reader
	total   int64
	read    int64
	attempt *transferAttempt
}

func (self *progressReader) Read(p []byte) (int, error) {
	n, err := self.reader.Read(p)
	if 0 < n {
		self.read += int64(n)
		if 0 < self.total {
			self.attempt.emitProgress(float64(self.read) / float64(self.total))
		}
	}
	return n, err
}

func (self *File) beginTransfer(flag *bool, op string, attempt *transferAttempt) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if *flag {
		glog.Warningf("[file]%s rejected: already %s\n", self.name, op)
		return false
	}
	*flag = true
	self.attempt = attempt
	return true
}

// endTransfer clears the busy state only when the finishing attempt is
// still the current one. A cancelled attempt's deferred cleanup must not
// clobber a successor admitted after the cancel.
func (self *File) endTransfer(flag *bool, attempt *transferAttempt) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if self.attempt != attempt {
		return
	}
	*flag = false
	self.attempt = nil
}

// Cancel aborts the in-flight upload or download. The attempt's callbacks
// are detached first so they never fire, the transport is aborted, and the
// busy flag is reset so a subsequent attempt is immediately admissible.
func (self *File) Cancel() {
	self.mutex.Lock()
	attempt := self.attempt
	self.attempt = nil
	self.uploading = false
	self.downloading = false
	self.mutex.Unlock()

	if attempt != nil {
		attempt.detach()
		attempt.cancel()
		logFile("cancelled transfer of %s", self.name)
	}
}

// Upload stores the file bytes with the backend. On success the server
// assigns the remote name and url and the file is no longer dirty.
func (self *File) Upload(progress ProgressFunction, callback FileCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*File]()
	}
	if !self.dirty {
		glog.Warningf("[file]%s upload rejected: already uploaded\n", self.name)
		return false
	}
	attempt := newTransferAttempt(self, progress, callback)
	if !self.beginTransfer(&self.uploading, "uploading", attempt) {
		return false
	}
	go HandleError(func() {
		self.runUpload(attempt)
	})
	return true
}

func (self *File) UploadSync() (bool, error) {
	if !self.dirty {
		glog.Warningf("[file]%s upload rejected: already uploaded\n", self.name)
		return false, nil
	}
	attempt := newTransferAttempt(self, nil, NewNoopApiCallback[*File]())
	if !self.beginTransfer(&self.uploading, "uploading", attempt) {
		return false, nil
	}
	err := self.runUpload(attempt)
	return err == nil, err
}

func (self *File) runUpload(attempt *transferAttempt) error {
	defer self.endTransfer(&self.uploading, attempt)

	self.mutex.Lock()
	data, err := self.loadData()
	self.mutex.Unlock()
	if err != nil {
		glog.Warningf("[file]upload rejected: %s\n", err)
		attempt.finish(err)
		return err
	}

	self.ensureName(data)
	self.ensureMimeType(data)

	req, err := http.NewRequestWithContext(
		attempt.ctx,
		"POST",
		self.client.apiUrl("/1/files/"+self.name),
		&progressReader{
			reader:  bytes.NewReader(data),
			total:   int64(len(data)),
			attempt: attempt,
		},
	)
	if err != nil {
		attempt.finish(err)
		return err
	}
	req.ContentLength = int64(len(data))
	req.Header.Add("Content-Type", self.mimeType)
	self.client.addAuthHeaders(req)

	r, err := self.client.httpClient().Do(req)
	if err != nil {
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		attempt.finish(apiErr)
		return apiErr
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		attempt.finish(apiErr)
		return apiErr
	}
	if r.StatusCode < 200 || 300 <= r.StatusCode {
		apiErr := errorFromResponse(r.StatusCode, responseBodyBytes)
		attempt.finish(apiErr)
		return apiErr
	}

	result := map[string]any{}
	if err := json.Unmarshal(responseBodyBytes, &result); err != nil {
		apiErr := NewError(ErrorInvalidJson, err.Error())
		attempt.finish(apiErr)
		return apiErr
	}

	self.mutex.Lock()
	if name, ok := result["name"].(string); ok && name != "" {
		self.name = name
	}
	if url, ok := result["url"].(string); ok {
		self.url = url
	}
	self.dirty = false
	self.mutex.Unlock()

	logFile("uploaded %s", self.name)
	attempt.finish(nil)
	return nil
}

// Download fetches the remote bytes and persists them into the local cache
// keyed by file name.
func (self *File) Download(progress ProgressFunction, callback FileCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*File]()
	}
	if self.url == "" {
		glog.Warningf("[file]%s download rejected: no remote url\n", self.name)
		return false
	}
	attempt := newTransferAttempt(self, progress, callback)
	if !self.beginTransfer(&self.downloading, "downloading", attempt) {
		return false
	}
	go HandleError(func() {
		self.runDownload(attempt)
	})
	return true
}

func (self *File) DownloadSync() (bool, error) {
	if self.url == "" {
		glog.Warningf("[file]%s download rejected: no remote url\n", self.name)
		return false, nil
	}
	attempt := newTransferAttempt(self, nil, NewNoopApiCallback[*File]())
	if !self.beginTransfer(&self.downloading, "downloading", attempt) {
		return false, nil
	}
	err := self.runDownload(attempt)
	return err == nil, err
}

func (self *File) runDownload(attempt *transferAttempt) error {
	defer self.endTransfer(&self.downloading, attempt)

	req, err := http.NewRequestWithContext(attempt.ctx, "GET", self.url, nil)
	if err != nil {
		attempt.finish(err)
		return err
	}

	r, err := self.client.httpClient().Do(req)
	if err != nil {
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		attempt.finish(apiErr)
		return apiErr
	}
	defer r.Body.Close()

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		responseBodyBytes, _ := io.ReadAll(r.Body)
		apiErr := errorFromResponse(r.StatusCode, responseBodyBytes)
		attempt.finish(apiErr)
		return apiErr
	}

	data, err := io.ReadAll(&progressReader{
		reader:  r.Body,
		total:   r.ContentLength,
		attempt: attempt,
	})
	if err != nil {
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		attempt.finish(apiErr)
		return apiErr
	}

	self.mutex.Lock()
	self.data = data
	self.mutex.Unlock()

	if cachePath, err := self.client.cacheFilePath(self.name); err == nil {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
			if err := os.WriteFile(cachePath, data, 0o644); err != nil {
				glog.Warningf("[file]could not cache %s: %s\n", self.name, err)
			}
		}
	}

	logFile("downloaded %s (%d bytes)", self.name, len(data))
	attempt.finish(nil)
	return nil
}

// a file uploaded without an explicit name gets a unique staging name with
// an extension matching the inferred type
func (self *File) ensureName(data []byte) {
	if self.name != "" {
		return
	}
	ext := ""
	if self.mimeType != "" {
		if exts, err := mime.ExtensionsByType(self.mimeType); err == nil && 0 < len(exts) {
			ext = exts[0]
		}
	} else {
		ext = mimetype.Detect(data).Extension()
	}
	self.name = strings.ToLower(ulid.Make().String()) + ext
}

func (self *File) ensureMimeType(data []byte) {
	if self.mimeType != "" {
		return
	}
	if ext := filepath.Ext(self.name); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			self.mimeType = byExt
			return
		}
	}
	self.mimeType = mimetype.Detect(data).String()
}

func (self *File) SetMimeType(mimeType string) {
	self.mimeType = mimeType
}

var logFile = LogFn(1, "[file]")
