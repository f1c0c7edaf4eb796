package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushDelivery(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ts := time.Unix(0, 42)
	err := NewClient(srv.URL+"/").PushDelivery(context.Background(), ts, DeliveryRecord{
		Kind: "twofa-otp", Recipient: "a@example.com", Status: "sent",
	})
	require.NoError(t, err)
	require.Len(t, got.Streams, 1)
	s := got.Streams[0]
	assert.Equal(t, map[string]string{"job": job, "kind": "twofa-otp", "status": "sent"}, s.Stream)
	require.Len(t, s.Values, 1)
	assert.Equal(t, "42", s.Values[0][0])
	assert.Contains(t, s.Values[0][1], `"recipient":"a@example.com"`)
}

func TestPush_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	assert.Error(t, NewClient(srv.URL).Push(context.Background(), time.Now(), "x", nil))
	assert.Error(t, NewClient("").Push(context.Background(), time.Now(), "x", nil))
}
