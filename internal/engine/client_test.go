package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_GenerateTitles(t *testing.T) {
	var captured Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-titles", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode([]Result{
			{SKU: "123456", OptimizedTitle: "Taladro eléctrico Bosch 500W", LabelTitle: "Taladro Bosch 500W", Warnings: []string{}, Status: StatusOK},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	results, err := client.GenerateTitles(context.Background(), Request{
		BatchID: "b1",
		Items:   []Item{{SKU: "123456", TituloOrigen: "TALADRO ELECTRICO 500W", Marca: "Bosch", Categoria: "Herramientas"}},
		Options: Options{Mode: "seo_and_label"},
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "123456", results[0].SKU)
	assert.Equal(t, StatusOK, results[0].Status)

	assert.Equal(t, "b1", captured.BatchID)
	require.Len(t, captured.Items, 1)
	assert.Equal(t, "TALADRO ELECTRICO 500W", captured.Items[0].TituloOrigen)
	assert.Equal(t, "seo_and_label", captured.Options.Mode)
}

func TestHTTPClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "engine overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.GenerateTitles(context.Background(), Request{BatchID: "b1"})
	require.Error(t, err)

	var te *TransientError
	require.True(t, errors.As(err, &te))
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPClient_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "batch rejected: too many items", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.GenerateTitles(context.Background(), Request{BatchID: "b1"})
	require.Error(t, err)

	var re *RequestError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadRequest, re.StatusCode)
	assert.False(t, IsTransient(err))
}

func TestHTTPClient_TimeoutIsTransient(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	client := NewHTTPClient(srv.URL, 50*time.Millisecond)
	_, err := client.GenerateTitles(context.Background(), Request{BatchID: "b1"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestHTTPClient_GarbledBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, 5*time.Second)
	_, err := client.GenerateTitles(context.Background(), Request{BatchID: "b1"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&TransientError{Op: "call", Err: errors.New("x")}))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(&RequestError{StatusCode: 422}))
	assert.False(t, IsTransient(context.Canceled))
}
