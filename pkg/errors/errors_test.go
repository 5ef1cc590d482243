package errors_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/AltairaLabs/callrelay/pkg/errors"
)

func TestNew(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := pkgerrors.New("provider", "ChatStream", cause)

	assert.Equal(t, "provider", err.Component)
	assert.Equal(t, "ChatStream", err.Operation)
	assert.Equal(t, 0, err.StatusCode)
	assert.Nil(t, err.Details)
	assert.Equal(t, cause, err.Cause)
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *pkgerrors.ContextualError
		want string
	}{
		{
			name: "with cause",
			err:  pkgerrors.New("session", "OnConnect", fmt.Errorf("closed")),
			want: "[session] OnConnect: closed",
		},
		{
			name: "no cause",
			err:  pkgerrors.New("config", "Load", nil),
			want: "[config] Load",
		},
		{
			name: "status code",
			err:  pkgerrors.New("provider", "ChatStream", fmt.Errorf("unauthorized")).WithStatusCode(401),
			want: "[provider] ChatStream (status 401): unauthorized",
		},
		{
			name: "status code no cause",
			err:  pkgerrors.New("provider", "ChatStream", nil).WithStatusCode(429),
			want: "[provider] ChatStream (status 429)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := pkgerrors.New("provider", "ReadStream", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))

	wrapped := fmt.Errorf("turn 7: %w", err)
	var ce *pkgerrors.ContextualError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "ReadStream", ce.Operation)
}

func TestWithDetails(t *testing.T) {
	err := pkgerrors.New("protocol", "Decode", nil).
		WithDetails(map[string]any{"field": "response_id"})

	assert.Equal(t, "response_id", err.Details["field"])
}

func TestStatusCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", pkgerrors.New("provider", "ChatStream", nil).WithStatusCode(503))
	assert.Equal(t, 503, pkgerrors.StatusCode(err))
	assert.Equal(t, 0, pkgerrors.StatusCode(io.EOF))
}
