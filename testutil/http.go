/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

// RequireStatusInRecorder checks the recorded status code and prints the body on mismatch.
func RequireStatusInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int) {
	markHelper(t)
	require.Equal(t, wantHTTPCode, resp.Code, "unexpected status, body: %s", resp.Body.String())
}

// RequireJSONInRecorder decodes the recorded JSON body into dest and compares it with want.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	markHelper(t)
	require.Equal(t, want, decodeJSONBody(t, resp.Header(), resp.Body, dest))
}

// RequireJSONInResponse is RequireJSONInRecorder for a real HTTP response. It doesn't close the body.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	markHelper(t)
	require.Equal(t, want, decodeJSONBody(t, resp.Header, resp.Body, dest))
}

// RequireStringJSONInRecorder compares the recorded JSON body with want byte for byte.
func RequireStringJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want string) {
	markHelper(t)
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	require.Equal(t, want, resp.Body.String())
}

func decodeJSONBody(t require.TestingT, header http.Header, body io.Reader, dest interface{}) interface{} {
	markHelper(t)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, dest), "body: %s", data)
	return dest
}
