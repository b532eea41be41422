package parse

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes mirrored from the backend error catalog. The client never
// invents codes, it decodes the server's.
const (
	ErrorInternalServer              = 1
	ErrorConnectionFailed            = 100
	ErrorObjectNotFound              = 101
	ErrorInvalidQuery                = 102
	ErrorInvalidClassName            = 103
	ErrorMissingObjectId             = 104
	ErrorInvalidKeyName              = 105
	ErrorInvalidPointer              = 106
	ErrorInvalidJson                 = 107
	ErrorCommandUnavailable          = 108
	ErrorIncorrectType               = 111
	ErrorInvalidChannelName          = 112
	ErrorPushMisconfigured           = 115
	ErrorObjectTooLarge              = 116
	ErrorOperationForbidden          = 119
	ErrorCacheMiss                   = 120
	ErrorInvalidNestedKey            = 121
	ErrorInvalidFileName             = 122
	ErrorInvalidAcl                  = 123
	ErrorTimeout                     = 124
	ErrorInvalidEmailAddress         = 125
	ErrorDuplicateValue              = 137
	ErrorInvalidRoleName             = 139
	ErrorExceededQuota               = 140
	ErrorScriptFailed                = 141
	ErrorValidationFailed            = 142
	ErrorFileDeleteFailed            = 153
	ErrorRequestLimitExceeded        = 155
	ErrorInvalidEventName            = 160
	ErrorUsernameMissing             = 200
	ErrorPasswordMissing             = 201
	ErrorUsernameTaken               = 202
	ErrorEmailTaken                  = 203
	ErrorEmailMissing                = 204
	ErrorEmailNotFound               = 205
	ErrorSessionMissing              = 206
	ErrorMustCreateUserThroughSignUp = 207
	ErrorAccountAlreadyLinked        = 208
	ErrorInvalidSessionToken         = 209
	ErrorLinkedIdMissing             = 250
	ErrorInvalidLinkedSession        = 251
	ErrorUnsupportedService          = 252
)

// Error is the decoded form of a backend failure, `{code, error}` on the wire.
// Operations that were rejected locally and never reached the server do not
// produce an Error; they log and return false instead.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func (self *Error) Error() string {
	return fmt.Sprintf("%s (%d)", self.Message, self.Code)
}

func (self *Error) toWire() map[string]any {
	return map[string]any{
		"code":  self.Code,
		"error": self.Message,
	}
}

func errorFromWire(wire map[string]any) *Error {
	e := &Error{}
	switch code := wire["code"].(type) {
	case float64:
		e.Code = int(code)
	case int:
		e.Code = code
	}
	if message, ok := wire["error"].(string); ok {
		e.Message = message
	}
	return e
}

// errorFromResponse decodes a non-2xx response body. A body that does not
// decode as `{code, error}` is surfaced as a connection-level failure with
// the raw body as the message.
func errorFromResponse(statusCode int, responseBodyBytes []byte) *Error {
	e := &Error{}
	if err := json.Unmarshal(responseBodyBytes, e); err == nil && e.Code != 0 {
		return e
	}
	message := strings.TrimSpace(string(responseBodyBytes))
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", statusCode)
	}
	return &Error{
		Code:    ErrorConnectionFailed,
		Message: message,
	}
}
