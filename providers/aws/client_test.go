package aws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"oil-forecaster/core/apperrors"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		key    string
	}{
		{"s3://data/wells/volve.csv", "data", "wells/volve.csv"},
		{"s3://models", "models", ""},
		{"s3://models/", "models", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.key, key)
		})
	}

	for _, bad := range []string{"data/volve.csv", "https://bucket/key", "s3:///key"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestIsURI(t *testing.T) {
	assert.True(t, IsURI("s3://bucket/key"))
	assert.False(t, IsURI("models"))
	assert.False(t, IsURI("/var/lib/s3://x"))
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
	}{
		{"no such key", &types.NoSuchKey{}, true},
		{"head not found", &types.NotFound{}, true},
		{"no such bucket code", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"transport", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapError("get", "bucket", "key", tt.err)
			assert.Equal(t, tt.notFound, errors.Is(err, apperrors.ErrNotFound))
			assert.Contains(t, err.Error(), "s3://bucket/key")
		})
	}
}

func TestClient_AgainstCompatibleEndpoint(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/volve.csv":
			w.Header().Set("Content-Type", "text/csv")
			if r.Method == http.MethodHead {
				w.Header().Set("Content-Length", "5")
				return
			}
			w.Write([]byte("a,b\n1"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method != http.MethodHead {
				w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`))
			}
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	client, err := NewClient(ctx, ClientConfig{Region: "us-east-1", Endpoint: srv.URL, ForcePathStyle: true})
	require.NoError(t, err)

	ok, err := client.Exists(ctx, "data", "volve.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Exists(ctx, "data", "missing.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	body, err := client.GetObject(ctx, "data", "volve.csv")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1", string(body))

	_, err = client.GetObject(ctx, "data", "missing.csv")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
