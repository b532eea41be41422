package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

const headerApplicationId = "X-Parse-Application-Id"
const headerRestApiKey = "X-Parse-REST-API-Key"
const headerSessionToken = "X-Parse-Session-Token"

func defaultHttpClient(config *Config) *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: config.HttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: config.HttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   config.HttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R], 1)
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// request runs one JSON round trip against the backend. `path` is relative
// to the server url, e.g. "/1/classes/Level". A nil `args` sends an empty
// body. Failure responses decode as `{code, error}` into an *Error.
func request[R any](ctx context.Context, client *Client, method string, path string, args any, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, client.apiUrl(path), bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")
	client.addAuthHeaders(req)

	logApi("%s %s", method, path)

	r, err := client.httpClient().Do(req)
	if err != nil {
		var empty R
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		callback.Result(empty, apiErr)
		return empty, apiErr
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		var empty R
		apiErr := NewError(ErrorConnectionFailed, err.Error())
		callback.Result(empty, apiErr)
		return empty, apiErr
	}

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		apiErr := errorFromResponse(r.StatusCode, responseBodyBytes)
		callback.Result(result, apiErr)
		return result, apiErr
	}

	if 0 < len(responseBodyBytes) {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			apiErr := NewError(ErrorInvalidJson, err.Error())
			callback.Result(empty, apiErr)
			return empty, apiErr
		}
	}

	callback.Result(result, nil)
	return result, nil
}

func post[R any](ctx context.Context, client *Client, path string, args any, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, client, "POST", path, args, result, callback)
}

func put[R any](ctx context.Context, client *Client, path string, args any, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, client, "PUT", path, args, result, callback)
}

func get[R any](ctx context.Context, client *Client, path string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, client, "GET", path, nil, result, callback)
}

func del[R any](ctx context.Context, client *Client, path string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, client, "DELETE", path, nil, result, callback)
}

var logApi = LogFn(2, "[api]")
