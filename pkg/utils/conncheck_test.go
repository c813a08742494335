package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "http://10.0.0.1", want: "ws://10.0.0.1/ws/rssi"},
		{in: "10.0.0.1:8080", want: "ws://10.0.0.1:8080/ws/rssi"},
		{in: "https://timer.local/", want: "wss://timer.local/ws/rssi"},
		{in: "ftp://x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := WebsocketURL(tt.in, "/ws/rssi")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPURL(t *testing.T) {
	assert.Equal(t, "http://10.0.0.1", HTTPURL("10.0.0.1"))
	assert.Equal(t, "https://a.b", HTTPURL("https://a.b/"))
}

func TestWaitForHTTPResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	assert.NoError(t, WaitForHTTPResponse(context.Background(), srv.URL, time.Second))

	srv.Close()
	assert.Error(t, WaitForHTTPResponse(context.Background(), srv.URL, 300*time.Millisecond))
}
