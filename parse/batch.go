package parse

import (
	"github.com/golang/glog"
)

const batchPath = "/1/batch"

type batchSubRequest struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body,omitempty"`
}

type batchRequest struct {
	Requests []batchSubRequest `json:"requests"`
}

// per-item outcomes are matched to the input list by positional index
type batchSubResponse struct {
	Success map[string]any `json:"success,omitempty"`
	Error   map[string]any `json:"error,omitempty"`
}

type ObjectListCallback apiCallback[[]*Object]

// beginAll admits one operation kind for every object, or none. Flags are
// set optimistically in a single pass and rolled back on the first busy
// object, so a single-object operation admitted concurrently can never
// slip between a check and a set.
func beginAll(objects []*Object, flag func(o *Object) *bool, op string) bool {
	admitted := make([]*Object, 0, len(objects))
	for _, o := range objects {
		o.stateMutex.Lock()
		busy := *flag(o)
		if !busy {
			*flag(o) = true
		}
		o.stateMutex.Unlock()
		if busy {
			glog.Warningf("[batch]rejected: %s(%s) already %s\n", o.className, o.objectId, op)
			endAll(admitted, flag)
			return false
		}
		admitted = append(admitted, o)
	}
	return true
}

func endAll(objects []*Object, flag func(o *Object) *bool) {
	for _, o := range objects {
		o.stateMutex.Lock()
		*flag(o) = false
		o.stateMutex.Unlock()
	}
}

func savingFlag(o *Object) *bool {
	return &o.saving
}

func deletingFlag(o *Object) *bool {
	return &o.deleting
}

// SaveAll persists all objects in one round trip. Each sub-request
// independently carries its own create-or-update method, path, and body,
// snapshotted at admission like Object.Save. The batch succeeds only if
// every item succeeds; when several items fail, only the last error seen
// is retained.
func (self *Client) SaveAll(objects []*Object, callback ObjectListCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[[]*Object]()
	}
	if !beginAll(objects, savingFlag, "saving") {
		return false
	}
	requests, needsUpdate, err := saveAllRequests(objects)
	if err != nil {
		endAll(objects, savingFlag)
		callback.Result(objects, err)
		return true
	}
	go HandleError(func() {
		self.runSaveAll(objects, requests, needsUpdate, callback)
	})
	return true
}

func (self *Client) SaveAllSync(objects []*Object) (bool, error) {
	if !beginAll(objects, savingFlag, "saving") {
		return false, nil
	}
	requests, needsUpdate, err := saveAllRequests(objects)
	if err != nil {
		endAll(objects, savingFlag)
		return false, err
	}
	err = self.runSaveAll(objects, requests, needsUpdate, NewNoopApiCallback[[]*Object]())
	return err == nil, err
}

func saveAllRequests(objects []*Object) ([]batchSubRequest, []bool, error) {
	requests := make([]batchSubRequest, 0, len(objects))
	needsUpdate := make([]bool, 0, len(objects))
	for _, o := range objects {
		method, path, body, update, err := o.saveRequest()
		if err != nil {
			glog.Warningf("[batch]save rejected: %s: %s\n", o.className, err)
			return nil, nil, err
		}
		requests = append(requests, batchSubRequest{
			Method: method,
			Path:   path,
			Body:   body,
		})
		needsUpdate = append(needsUpdate, update)
	}
	return requests, needsUpdate, nil
}

func (self *Client) runSaveAll(objects []*Object, requests []batchSubRequest, needsUpdate []bool, callback ObjectListCallback) error {
	defer endAll(objects, savingFlag)

	results, err := post(self.ctx, self, batchPath, &batchRequest{Requests: requests}, []batchSubResponse{}, NewNoopApiCallback[[]batchSubResponse]())
	lastErr := self.applyBatch(err, results, len(objects), func(i int, success map[string]any) {
		objects[i].applySaveSuccess(needsUpdate[i], success)
	})
	callback.Result(objects, lastErr)
	return lastErr
}

// DeleteAll mirrors SaveAll's batching and positional matching. A per-item
// success carries no payload; it only resets that item's id.
func (self *Client) DeleteAll(objects []*Object, callback ObjectListCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[[]*Object]()
	}
	if !beginAll(objects, deletingFlag, "deleting") {
		return false
	}
	requests := deleteAllRequests(objects)
	go HandleError(func() {
		self.runDeleteAll(objects, requests, callback)
	})
	return true
}

func (self *Client) DeleteAllSync(objects []*Object) (bool, error) {
	if !beginAll(objects, deletingFlag, "deleting") {
		return false, nil
	}
	err := self.runDeleteAll(objects, deleteAllRequests(objects), NewNoopApiCallback[[]*Object]())
	return err == nil, err
}

func deleteAllRequests(objects []*Object) []batchSubRequest {
	requests := make([]batchSubRequest, 0, len(objects))
	for _, o := range objects {
		method, path := o.deleteRequest()
		requests = append(requests, batchSubRequest{
			Method: method,
			Path:   path,
		})
	}
	return requests
}

func (self *Client) runDeleteAll(objects []*Object, requests []batchSubRequest, callback ObjectListCallback) error {
	defer endAll(objects, deletingFlag)

	results, err := post(self.ctx, self, batchPath, &batchRequest{Requests: requests}, []batchSubResponse{}, NewNoopApiCallback[[]batchSubResponse]())
	lastErr := self.applyBatch(err, results, len(objects), func(i int, success map[string]any) {
		objects[i].applyDeleteSuccess()
	})
	callback.Result(objects, lastErr)
	return lastErr
}

// applyBatch walks the parallel result array. A transport-level failure
// fails every item with the one error. Per-item errors stomp: the last one
// seen overwrites earlier ones. This mirrors the wire contract's precision
// loss rather than fixing it silently.
func (self *Client) applyBatch(err error, results []batchSubResponse, count int, applySuccess func(i int, success map[string]any)) error {
	if err != nil {
		return err
	}
	if len(results) != count {
		return NewError(ErrorInvalidJson, "batch response count does not match request count")
	}
	var lastErr error
	for i, item := range results {
		if item.Success != nil {
			applySuccess(i, item.Success)
		} else if item.Error != nil {
			lastErr = errorFromWire(item.Error)
		} else {
			lastErr = NewError(ErrorInvalidJson, "batch item carries neither success nor error")
		}
	}
	return lastErr
}

// FetchAll fetches each object independently and sequentially. Overall
// success is the conjunction of all items; only the last error survives.
func (self *Client) FetchAll(objects []*Object, callback ObjectListCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[[]*Object]()
	}
	go HandleError(func() {
		_, err := self.FetchAllSync(objects)
		callback.Result(objects, err)
	})
	return true
}

func (self *Client) FetchAllSync(objects []*Object) (bool, error) {
	allOk := true
	var lastErr error
	for _, o := range objects {
		ok, err := o.FetchSync()
		if !ok {
			allOk = false
		}
		if err != nil {
			lastErr = err
		}
	}
	return allOk, lastErr
}

func (self *Client) FetchAllIfNeeded(objects []*Object, callback ObjectListCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[[]*Object]()
	}
	go HandleError(func() {
		_, err := self.FetchAllIfNeededSync(objects)
		callback.Result(objects, err)
	})
	return true
}

// FetchAllIfNeededSync skips objects whose data is already available; a
// skip does not count against the overall success.
func (self *Client) FetchAllIfNeededSync(objects []*Object) (bool, error) {
	allOk := true
	var lastErr error
	for _, o := range objects {
		if o.IsDataAvailable() {
			continue
		}
		ok, err := o.FetchSync()
		if !ok {
			allOk = false
		}
		if err != nil {
			lastErr = err
		}
	}
	return allOk, lastErr
}
