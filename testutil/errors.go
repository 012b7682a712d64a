/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers shared by tests of the registration coordinator and its hosting packages.
// Helpers take require.TestingT and stop the test on the first failed expectation.
package testutil

import (
	"fmt"
	"time"

	"github.com/stretchr/testify/require"
)

func markHelper(t require.TestingT) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
}

// RequireNoErrorInChannel fails if a non-nil error is already buffered in c. It doesn't wait.
func RequireNoErrorInChannel(t require.TestingT, c <-chan error, msgAndArgs ...interface{}) {
	markHelper(t)
	select {
	case err := <-c:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}

// RequireErrorInChannel waits up to timeout for a non-nil error in c and returns it.
func RequireErrorInChannel(t require.TestingT, c <-chan error, timeout time.Duration, msgAndArgs ...interface{}) error {
	markHelper(t)
	select {
	case err := <-c:
		require.Error(t, err, msgAndArgs...)
		return err
	case <-time.After(timeout):
		require.FailNow(t, fmt.Sprintf("no error received in %s", timeout), msgAndArgs...)
		return nil
	}
}

// RequireChannelClosed waits up to timeout for c to be closed, e.g. a Done() channel.
func RequireChannelClosed(t require.TestingT, c <-chan struct{}, timeout time.Duration, msgAndArgs ...interface{}) {
	markHelper(t)
	select {
	case <-c:
	case <-time.After(timeout):
		require.FailNow(t, fmt.Sprintf("channel is not closed in %s", timeout), msgAndArgs...)
	}
}
