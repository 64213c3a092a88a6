package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassPredicates(t *testing.T) {
	auth := NewAuthError("login rejected", nil).WithAccount("north")
	network := NewNetworkError("connection reset", errors.New("read: connection reset by peer"))
	api := NewAPIError(503, "service unavailable").WithEndpoint("/reports/closing")

	require.True(t, IsAuth(auth))
	require.False(t, IsNetwork(auth))
	require.True(t, IsNetwork(network))
	require.True(t, IsAPI(api))
	require.Equal(t, 503, StatusCode(api))
	require.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestKind(t *testing.T) {
	require.Equal(t, "", Kind(nil))
	require.Equal(t, "auth", Kind(fmt.Errorf("inventory: %w", NewAuthError("expired", nil))))
	require.Equal(t, "network", Kind(NewNetworkError("timeout", nil)))
	require.Equal(t, "api", Kind(NewAPIError(500, "boom")))
	require.Equal(t, KindInternal, Kind(errors.New("parse failure")))
}

func TestErrorsIsMatchesClassAndStatus(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewAPIError(404, "not found"))

	require.True(t, errors.Is(err, &Error{Class: ClassAPI}))
	require.True(t, errors.Is(err, &Error{Class: ClassAPI, Status: 404}))
	require.False(t, errors.Is(err, &Error{Class: ClassAPI, Status: 500}))
	require.False(t, errors.Is(err, &Error{Class: ClassAuth}))
}

func TestErrorMessage(t *testing.T) {
	err := NewAPIError(502, "bad gateway").WithEndpoint("/login")
	require.Equal(t, "[api] bad gateway (status=502) (endpoint=/login)", err.Error())

	wrapped := NewNetworkError("request failed", errors.New("i/o timeout"))
	require.Equal(t, "[network] request failed: i/o timeout", wrapped.Error())
}
