package parse

import (
	"fmt"
	"slices"
	"sync"

	"github.com/golang/glog"
)

// reserved keys are intercepted during fetch/parse and populate the object
// identity fields instead of the property bag
var reservedKeys = map[string]bool{
	"className": true,
	"objectId":  true,
	"createdAt": true,
	"updatedAt": true,
	"ACL":       true,
}

const aclPropertyKey = "ACL"

// Object mirrors one remote record: a mutable property bag plus identity
// fields assigned by the server. A new object (empty id) serializes its full
// bag on save; a persisted object serializes only the pending changes
// recorded since the last successful save.
//
// The busy flags are the sole admission control: a second operation of the
// same kind while one is outstanding is rejected synchronously, not queued.
// Operations of different kinds are not mutually excluded.
type Object struct {
	client *Client

	className string
	objectId  string
	createdAt DateTime
	updatedAt DateTime
	acl       *Acl

	properties     map[string]Value
	pendingChanges map[string]Value

	stateMutex  sync.Mutex
	saving      bool
	deleting    bool
	fetching    bool
	fetchedData bool
}

func newObject(client *Client, className string) *Object {
	return &Object{
		client:         client,
		className:      className,
		properties:     map[string]Value{},
		pendingChanges: map[string]Value{},
	}
}

func newObjectWithId(client *Client, className string, objectId string) *Object {
	o := newObject(client, className)
	o.objectId = objectId
	return o
}

// NewObject creates a local object of the given class. Returns nil for an
// empty class name; no partially typed object ever exists. The configured
// default ACL, if any, is cloned onto the new object.
func (self *Client) NewObject(className string) *Object {
	if className == "" {
		glog.Warningf("[obj]cannot create an object with an empty class name\n")
		return nil
	}
	o := newObject(self, className)
	if acl := self.defaultAclClone(); acl != nil {
		o.SetAcl(acl)
	}
	return o
}

// NewObjectWithId creates a handle to a record already known to the server.
// No default ACL is applied. Returns nil if either argument is empty.
func (self *Client) NewObjectWithId(className string, objectId string) *Object {
	if className == "" || objectId == "" {
		glog.Warningf("[obj]cannot create an object handle without a class name and id\n")
		return nil
	}
	return newObjectWithId(self, className, objectId)
}

func (self *Object) ClassName() string {
	return self.className
}

func (self *Object) Id() string {
	return self.objectId
}

func (self *Object) CreatedAt() DateTime {
	return self.createdAt
}

func (self *Object) UpdatedAt() DateTime {
	return self.updatedAt
}

func (self *Object) Acl() *Acl {
	return self.acl
}

func (self *Object) IsNew() bool {
	return self.objectId == ""
}

func (self *Object) IsDirty() bool {
	if self.IsNew() {
		return 0 < len(self.properties)
	}
	return 0 < len(self.pendingChanges)
}

func (self *Object) IsSaving() bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.saving
}

func (self *Object) IsDeleting() bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.deleting
}

func (self *Object) IsFetching() bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.fetching
}

func (self *Object) HasFetchedData() bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.fetchedData
}

// IsDataAvailable is true for a brand-new object and for any object whose
// data was populated from the server.
func (self *Object) IsDataAvailable() bool {
	return self.IsNew() || self.HasFetchedData()
}

// Set stores a property and, for a persisted object, records it as a
// pending change. Changes to a brand-new object need no separate diff; the
// whole bag is the create payload.
func (self *Object) Set(key string, value Value) {
	self.properties[key] = value
	if self.objectId != "" {
		self.pendingChanges[key] = value
	}
}

// Get returns the current value, or an invalid Value for an absent key.
func (self *Object) Get(key string) Value {
	return self.properties[key]
}

func (self *Object) Has(key string) bool {
	_, ok := self.properties[key]
	return ok
}

func (self *Object) Keys() []string {
	keys := make([]string, 0, len(self.properties))
	for key := range self.properties {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Unset deletes a property. For a persisted object a delete-operation
// marker is recorded so the removal reaches the server on the next save.
// Returns false for an absent key.
func (self *Object) Unset(key string) bool {
	if _, ok := self.properties[key]; !ok {
		return false
	}
	delete(self.properties, key)
	if self.objectId != "" {
		self.pendingChanges[key] = opDelete()
	}
	return true
}

// Increment adds amount to a numeric property. A non-numeric or absent key
// is a logged no-op. The arithmetic is done in floating point and converted
// back to the original numeric subtype.
func (self *Object) Increment(key string, amount float64) bool {
	existing, ok := self.properties[key]
	if !ok || !existing.IsNumber() {
		glog.Warningf("[obj]%s cannot increment non-numeric property %q\n", self.className, key)
		return false
	}
	next := existing.Float() + amount
	if existing.Kind() == ValueKindInt {
		self.properties[key] = Int(int64(next))
	} else {
		self.properties[key] = Float(next)
	}
	if self.objectId != "" {
		total := amount
		if pending, ok := self.pendingChanges[key]; ok && pendingOp(pending) == "Increment" {
			total += pending.Map()["amount"].Float()
		}
		self.pendingChanges[key] = opIncrement(total)
	}
	return true
}

func (self *Object) Increment1(key string) bool {
	return self.Increment(key, 1)
}

// Append appends values to a list property, in order. Operating on a
// missing or non-list key is a logged no-op.
func (self *Object) Append(key string, values ...Value) bool {
	existing, ok := self.listProperty(key)
	if !ok {
		return false
	}
	self.properties[key] = List(append(slices.Clone(existing), values...)...)
	self.recordListOp(key, "Add", values)
	return true
}

// AppendUnique appends only the subset of values not already present in the
// list, by serialized equality. An entirely duplicate input is a no-op.
func (self *Object) AppendUnique(key string, values ...Value) bool {
	existing, ok := self.listProperty(key)
	if !ok {
		return false
	}
	unique := []Value{}
	for _, candidate := range values {
		present := false
		for _, e := range existing {
			if valuesEqual(e, candidate) {
				present = true
				break
			}
		}
		if !present {
			unique = append(unique, candidate)
		}
	}
	if len(unique) == 0 {
		glog.V(1).Infof("[obj]%s append unique to %q: all values already present\n", self.className, key)
		return false
	}
	self.properties[key] = List(append(slices.Clone(existing), unique...)...)
	self.recordListOp(key, "AddUnique", unique)
	return true
}

// Remove removes, for each given value, the first stored element that
// compares equal by serialized equality. At most one stored element is
// removed per matching input element, even when the list holds duplicates.
func (self *Object) Remove(key string, values ...Value) bool {
	existing, ok := self.listProperty(key)
	if !ok {
		return false
	}
	remaining := slices.Clone(existing)
	matched := []Value{}
	for _, candidate := range values {
		for i, e := range remaining {
			if valuesEqual(e, candidate) {
				matched = append(matched, e)
				remaining = slices.Delete(remaining, i, i+1)
				break
			}
		}
	}
	if len(matched) == 0 {
		glog.V(1).Infof("[obj]%s remove from %q: nothing matched\n", self.className, key)
		return false
	}
	self.properties[key] = List(remaining...)
	self.recordListOp(key, "Remove", matched)
	return true
}

func (self *Object) listProperty(key string) ([]Value, bool) {
	existing, ok := self.properties[key]
	if !ok || existing.Kind() != ValueKindList {
		glog.Warningf("[obj]%s property %q is not a list\n", self.className, key)
		return nil, false
	}
	return existing.List(), true
}

// SetAcl attaches the ACL and mirrors it into the property bag. An empty
// ACL detaches, removing the property key entirely.
func (self *Object) SetAcl(acl *Acl) {
	if acl == nil || acl.IsEmpty() {
		self.acl = nil
		self.Unset(aclPropertyKey)
		return
	}
	self.acl = acl
	self.Set(aclPropertyKey, AclValue(acl))
}

func opDelete() Value {
	return MapValue(map[string]Value{
		"__op": String("Delete"),
	})
}

func opIncrement(amount float64) Value {
	return MapValue(map[string]Value{
		"__op":   String("Increment"),
		"amount": Float(amount),
	})
}

func pendingOp(value Value) string {
	if value.Kind() != ValueKindMap {
		return ""
	}
	return value.Map()["__op"].String()
}

// consecutive operations of the same kind on the same key merge into one
// marker; a different kind replaces the previous marker
func (self *Object) recordListOp(key string, op string, objects []Value) {
	if self.objectId == "" {
		return
	}
	merged := objects
	if pending, ok := self.pendingChanges[key]; ok && pendingOp(pending) == op {
		merged = append(slices.Clone(pending.Map()["objects"].List()), objects...)
	}
	self.pendingChanges[key] = MapValue(map[string]Value{
		"__op":    String(op),
		"objects": List(merged...),
	})
}

func (self *Object) toWirePointer() (map[string]any, error) {
	if self.objectId == "" {
		return nil, fmt.Errorf("cannot reference an unsaved %s object", self.className)
	}
	return map[string]any{
		"__type":    "Pointer",
		"className": self.className,
		"objectId":  self.objectId,
	}, nil
}

func mapToWire(m map[string]Value) (map[string]any, error) {
	wireAny, err := MapValue(m).toWire()
	if err != nil {
		return nil, err
	}
	return wireAny.(map[string]any), nil
}

// parseFields replaces the property bag wholesale from server state. The
// reserved keys are stripped out of the bag into their dedicated fields.
// The swap happens under the state mutex because fetch and log-in apply
// server state on a background goroutine.
func (self *Object) parseFields(wire map[string]any) {
	properties := map[string]Value{}
	for key, wireValue := range wire {
		if reservedKeys[key] || key == "__type" {
			continue
		}
		properties[key] = valueFromWire(self.client, wireValue)
	}

	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()

	self.properties = properties
	self.pendingChanges = map[string]Value{}

	if objectId, ok := wire["objectId"].(string); ok && objectId != "" {
		self.objectId = objectId
	}
	if createdAt, ok := wire["createdAt"].(string); ok {
		self.createdAt = DateTimeFromString(createdAt)
	}
	if updatedAt, ok := wire["updatedAt"].(string); ok {
		self.updatedAt = DateTimeFromString(updatedAt)
	}
	if aclWire, ok := wire[aclPropertyKey].(map[string]any); ok {
		self.acl = aclFromWire(aclWire)
	}

	self.fetchedData = true
}

func (self *Object) begin(flag *bool, op string) bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	if *flag {
		glog.Warningf("[obj]%s(%s) rejected: already %s\n", self.className, self.objectId, op)
		return false
	}
	*flag = true
	return true
}

func (self *Object) end(flag *bool) {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	*flag = false
}

type ObjectCallback apiCallback[*Object]

// Save persists the object in the background and invokes the callback
// exactly once with the outcome. The return reports whether the operation
// was admitted; a save already in flight rejects synchronously.
//
// The wire body is snapshotted on the calling goroutine before the hand
// off, so the caller is free to keep mutating the object while the request
// is in flight.
func (self *Object) Save(callback ObjectCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*Object]()
	}
	if !self.begin(&self.saving, "saving") {
		return false
	}
	_, path, body, needsUpdate, err := self.saveRequest()
	if err != nil {
		self.end(&self.saving)
		glog.Warningf("[obj]%s save rejected: %s\n", self.className, err)
		callback.Result(self, err)
		return true
	}
	go HandleError(func() {
		self.runSave(path, body, needsUpdate, callback)
	})
	return true
}

// SaveSync persists the object on the calling goroutine. A false with a nil
// error means the operation was rejected locally and no round trip happened.
func (self *Object) SaveSync() (bool, error) {
	if !self.begin(&self.saving, "saving") {
		return false, nil
	}
	_, path, body, needsUpdate, err := self.saveRequest()
	if err != nil {
		self.end(&self.saving)
		glog.Warningf("[obj]%s save rejected: %s\n", self.className, err)
		return false, err
	}
	err = self.runSave(path, body, needsUpdate, NewNoopApiCallback[*Object]())
	return err == nil, err
}

func (self *Object) saveRequest() (method string, path string, body map[string]any, needsUpdate bool, err error) {
	needsUpdate = self.objectId != ""
	if needsUpdate {
		method = "PUT"
		path = fmt.Sprintf("/1/classes/%s/%s", self.className, self.objectId)
		body, err = mapToWire(self.pendingChanges)
	} else {
		method = "POST"
		path = fmt.Sprintf("/1/classes/%s", self.className)
		body, err = mapToWire(self.properties)
	}
	return
}

func (self *Object) applySaveSuccess(needsUpdate bool, wire map[string]any) {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()

	if needsUpdate {
		if updatedAt, ok := wire["updatedAt"].(string); ok {
			self.updatedAt = DateTimeFromString(updatedAt)
		}
	} else {
		if objectId, ok := wire["objectId"].(string); ok {
			self.objectId = objectId
		}
		if createdAt, ok := wire["createdAt"].(string); ok {
			self.createdAt = DateTimeFromString(createdAt)
		}
	}
	self.pendingChanges = map[string]Value{}
}

func (self *Object) runSave(path string, body map[string]any, needsUpdate bool, callback ObjectCallback) error {
	defer self.end(&self.saving)

	var result map[string]any
	var err error
	if needsUpdate {
		result, err = put(self.client.ctx, self.client, path, body, map[string]any{}, NewNoopApiCallback[map[string]any]())
	} else {
		result, err = post(self.client.ctx, self.client, path, body, map[string]any{}, NewNoopApiCallback[map[string]any]())
	}
	if err == nil {
		self.applySaveSuccess(needsUpdate, result)
		logObj("saved %s(%s)", self.className, self.objectId)
	}
	callback.Result(self, err)
	return err
}

// Delete removes the remote record. On success the id is cleared and the
// object is conceptually new again.
func (self *Object) Delete(callback ObjectCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*Object]()
	}
	if self.objectId == "" {
		glog.Warningf("[obj]%s delete rejected: never persisted\n", self.className)
		return false
	}
	if !self.begin(&self.deleting, "deleting") {
		return false
	}
	_, path := self.deleteRequest()
	go HandleError(func() {
		self.runDelete(path, callback)
	})
	return true
}

func (self *Object) DeleteSync() (bool, error) {
	if self.objectId == "" {
		glog.Warningf("[obj]%s delete rejected: never persisted\n", self.className)
		return false, nil
	}
	if !self.begin(&self.deleting, "deleting") {
		return false, nil
	}
	_, path := self.deleteRequest()
	err := self.runDelete(path, NewNoopApiCallback[*Object]())
	return err == nil, err
}

func (self *Object) deleteRequest() (string, string) {
	return "DELETE", fmt.Sprintf("/1/classes/%s/%s", self.className, self.objectId)
}

func (self *Object) applyDeleteSuccess() {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()

	self.objectId = ""
	self.pendingChanges = map[string]Value{}
}

func (self *Object) runDelete(path string, callback ObjectCallback) error {
	defer self.end(&self.deleting)

	_, err := del(self.client.ctx, self.client, path, map[string]any{}, NewNoopApiCallback[map[string]any]())
	if err == nil {
		self.applyDeleteSuccess()
		logObj("deleted %s", self.className)
	}
	callback.Result(self, err)
	return err
}

// Fetch overwrites the local property bag wholesale with server state.
func (self *Object) Fetch(callback ObjectCallback) bool {
	if callback == nil {
		callback = NewNoopApiCallback[*Object]()
	}
	if self.objectId == "" {
		glog.Warningf("[obj]%s fetch rejected: never persisted\n", self.className)
		return false
	}
	if !self.begin(&self.fetching, "fetching") {
		return false
	}
	path := fmt.Sprintf("/1/classes/%s/%s", self.className, self.objectId)
	go HandleError(func() {
		self.runFetch(path, callback)
	})
	return true
}

func (self *Object) FetchSync() (bool, error) {
	if self.objectId == "" {
		glog.Warningf("[obj]%s fetch rejected: never persisted\n", self.className)
		return false, nil
	}
	if !self.begin(&self.fetching, "fetching") {
		return false, nil
	}
	path := fmt.Sprintf("/1/classes/%s/%s", self.className, self.objectId)
	err := self.runFetch(path, NewNoopApiCallback[*Object]())
	return err == nil, err
}

func (self *Object) runFetch(path string, callback ObjectCallback) error {
	defer self.end(&self.fetching)

	result, err := get(self.client.ctx, self.client, path, map[string]any{}, NewNoopApiCallback[map[string]any]())
	if err == nil {
		self.parseFields(result)
		logObj("fetched %s(%s)", self.className, self.objectId)
	}
	callback.Result(self, err)
	return err
}

// FetchIfNeeded fetches only when the object's data is not already
// considered available. A no-op returning false otherwise, not an error.
func (self *Object) FetchIfNeeded(callback ObjectCallback) bool {
	if self.IsDataAvailable() {
		glog.V(1).Infof("[obj]%s(%s) fetch skipped: data available\n", self.className, self.objectId)
		return false
	}
	return self.Fetch(callback)
}

func (self *Object) FetchIfNeededSync() (bool, error) {
	if self.IsDataAvailable() {
		glog.V(1).Infof("[obj]%s(%s) fetch skipped: data available\n", self.className, self.objectId)
		return false, nil
	}
	return self.FetchSync()
}

var logObj = LogFn(1, "[obj]")
