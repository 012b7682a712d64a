/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"strings"
)

// recordingT collects failures reported by the helpers instead of failing the real test.
type recordingT struct {
	Failed   bool
	Messages []string
}

func (t *recordingT) FailNow() {
	t.Failed = true
}

func (t *recordingT) Errorf(format string, args ...interface{}) {
	t.Messages = append(t.Messages, fmt.Sprintf(format, args...))
}

func (t *recordingT) Output() string {
	return strings.Join(t.Messages, "\n")
}
