package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/port-labs/ocean-core/internal/catalog"
	"github.com/port-labs/ocean-core/internal/entity"
)

type staticToken struct{}

func (staticToken) Token(ctx context.Context) (string, error) { return "test-token", nil }

func TestFakeUpsertAndSearch(t *testing.T) {
	fake := catalog.NewFake()
	ctx := context.Background()

	_, err := fake.UpsertEntitiesBatch(ctx, "service", []entity.Entity{
		{Identifier: "svc-1", Blueprint: "service"},
		{Identifier: "svc-2", Blueprint: "service"},
	}, catalog.UpsertOptions{})
	require.NoError(t, err)

	page := fake.SearchEntitiesByIntegration(ctx, "my-integration", "service")
	refs, ok, err := page.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, refs, 2)

	refs, ok, err = page.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, refs)
}

func TestFakeDeleteEntity(t *testing.T) {
	fake := catalog.NewFake()
	ctx := context.Background()

	_, err := fake.UpsertEntitiesBatch(ctx, "service", []entity.Entity{{Identifier: "svc-1", Blueprint: "service"}}, catalog.UpsertOptions{})
	require.NoError(t, err)

	require.NoError(t, fake.DeleteEntity(ctx, "service", "svc-1", catalog.DeleteOptions{}))

	page := fake.SearchEntitiesByIntegration(ctx, "my-integration", "service")
	refs, ok, _ := page.Next(ctx)
	assert.False(t, ok)
	assert.Empty(t, refs)
}

func TestHTTPClientUpsertEntitiesBatch(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/blueprints/service/entities/bulk", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var body struct {
			Entities []entity.Entity `json:"entities"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := struct {
			Results []struct {
				Identifier string `json:"identifier"`
			} `json:"results"`
		}{}
		for _, e := range body.Entities {
			resp.Results = append(resp.Results, struct {
				Identifier string `json:"identifier"`
			}{Identifier: e.Identifier})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	client := catalog.NewHTTPClient(srv.URL, srv.Client(), staticToken{}, nil)
	results, err := client.UpsertEntitiesBatch(context.Background(), "service", []entity.Entity{
		{Identifier: "svc-1", Blueprint: "service"},
	}, catalog.UpsertOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPClientDeleteEntityTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := catalog.NewHTTPClient(srv.URL, srv.Client(), staticToken{}, nil)
	err := client.DeleteEntity(context.Background(), "service", "svc-1", catalog.DeleteOptions{})
	assert.NoError(t, err)
}

func TestHTTPClientDeleteEntityReportsOtherPermanentFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := catalog.NewHTTPClient(srv.URL, srv.Client(), staticToken{}, nil)
	err := client.DeleteEntity(context.Background(), "service", "svc-1", catalog.DeleteOptions{})
	assert.Error(t, err)
}

func TestHTTPClientRetriesTransientFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	client := catalog.NewHTTPClient(srv.URL, srv.Client(), staticToken{}, nil)
	err := client.RegisterIntegration(context.Background(), catalog.IntegrationSpec{Identifier: "my-integration"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestHTTPClientDoesNotRetryPermanentFailures(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := catalog.NewHTTPClient(srv.URL, srv.Client(), staticToken{}, nil)
	err := client.RegisterIntegration(context.Background(), catalog.IntegrationSpec{Identifier: "my-integration"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}
