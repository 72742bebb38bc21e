package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{StatusCode: 429}, true},
		{"500", &StatusError{StatusCode: 500}, true},
		{"503 wrapped", eris.Wrap(&StatusError{StatusCode: 503}, "smartlead: leads"), true},
		{"400", &StatusError{StatusCode: 400}, false},
		{"404", &StatusError{StatusCode: 404}, false},
		{"net timeout", fmt.Errorf("get: %w", timeoutErr{}), true},
		{"reset text", errors.New("read tcp: connection reset by peer"), true},
		{"eof text", errors.New("Get \"x\": unexpected EOF"), true},
		{"plain", errors.New("bad json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestStatusError_Message(t *testing.T) {
	assert.Equal(t, "smartlead: status 429", (&StatusError{Service: "smartlead", StatusCode: 429}).Error())
	assert.Equal(t, "smartlead: status 401: nope", (&StatusError{Service: "smartlead", StatusCode: 401, Body: "nope"}).Error())
	assert.Equal(t, 0, StatusCode(errors.New("x")))
}
