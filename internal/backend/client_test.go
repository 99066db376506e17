package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CallFunction(t *testing.T) {
	var gotPath, gotAuth, gotRequestID string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"nonce":"n-1"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/", 0, nil)
	n, err := c.NewNonce(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "n-1", n)
	assert.Equal(t, "/api/wallet/new-nonce", gotPath)
	assert.Empty(t, gotAuth)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, map[string]string{"walletAddress": "0xabc"}, gotBody)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"INVALID_SIGNATURE","message":"Signature verification failed"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	_, err := c.SignIn(context.Background(), "0xabc", "0xdead")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidSignature)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	assert.Equal(t, "Signature verification failed", appErr.Message)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	err := c.CallFunction(context.Background(), PathNewNonce, nil, nil)
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeBackend, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.StatusCode)
}

func TestClient_MissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	_, err := c.SignIn(context.Background(), "0xabc", "0xdead")
	require.ErrorContains(t, err, "no data field")
}

func TestClient_LogoutSendsBearer(t *testing.T) {
	var gotAuth, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, nil)
	require.NoError(t, c.Logout(context.Background(), "tok1"))
	assert.Equal(t, "Bearer tok1", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
}
