package parse

import (
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/golang/glog"
)

// makes a copy of the list on update, so that callbacks can be
// dispatched outside the mutex
type CallbackList[T any] struct {
	mutex      sync.Mutex
	callbackId int
	callbacks  map[int]T
	order      []int
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbacks: map[int]T{},
	}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.order))
	for _, callbackId := range self.order {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.callbackId += 1
	callbackId := self.callbackId
	self.callbacks[callbackId] = callback
	self.order = append(self.order, callbackId)
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if _, ok := self.callbacks[callbackId]; !ok {
		// not present
		return
	}
	delete(self.callbacks, callbackId)
	i := slices.Index(self.order, callbackId)
	self.order = slices.Delete(slices.Clone(self.order), i, i+1)
}

func (self *CallbackList[T]) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	maps.Clear(self.callbacks)
	self.order = nil
}

// HandleError runs `do` and converts a panic into a logged error,
// so that a misbehaving user callback cannot take down the caller
func HandleError(do func(), handlers ...func(err error)) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("Unexpected error: %s\n%s\n", r, debug.Stack())
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("%s", r)
			}
			for _, handler := range handlers {
				handler(err)
			}
		}
	}()
	do()
}
