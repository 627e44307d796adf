package ledgerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func txGroupBody(id, externalID string) string {
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"id": id,
			"attributes": map[string]any{
				"transactions": []map[string]any{
					{"type": "withdrawal", "date": "2024-01-05", "amount": "12.50", "external_id": externalID},
				},
			},
		},
	})
	return string(body)
}

func TestCreateTransactionPostsPayload(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(txGroupBody("9", "ext-1")))
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	id, created, err := client.CreateTransaction(context.Background(), map[string]any{
		"transactions": []map[string]any{{"external_id": "ext-1"}},
	}, false)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(9), id)
}

func TestCreateTransactionSkipsDuplicateWhenAlreadyLinked(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/v1/search/transactions" {
			body, _ := json.Marshal(map[string]any{"data": []map[string]any{
				{"id": "5", "attributes": map[string]any{"transactions": []map[string]any{
					{"external_id": "ext-dup"},
				}}},
			}})
			_, _ = w.Write(body)
			return
		}
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	id, created, err := client.CreateTransaction(context.Background(), map[string]any{
		"transactions": []map[string]any{{"external_id": "ext-dup"}},
	}, true)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, int64(5), id)
}

func TestGetTransactionReturnsNilOnNotFound(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	tx, err := client.GetTransaction(context.Background(), 404)
	require.NoError(t, err)
	require.Nil(t, tx)
}

func TestUpdateLinkageSurfacesRemoteValidationFields(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]any{
			"message": "validation failed",
			"errors":  map[string][]string{"notes": {"too long"}},
		})
		_, _ = w.Write(body)
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	err := client.UpdateLinkage(context.Background(), 1, LinkageMarkers{Notes: "x"})
	require.Error(t, err)

	var re *apperrors.RemoteAPIError
	require.ErrorAs(t, err, &re)
	require.Equal(t, 422, re.Status)
	require.Contains(t, re.Fields, "notes")
}

func TestListAccountsPaginates(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		var body []byte
		if page == "1" {
			body, _ = json.Marshal(map[string]any{
				"data": []map[string]any{
					{"id": "1", "attributes": map[string]any{"name": "Checking", "type": "asset", "currency_code": "USD"}},
				},
				"meta": map[string]any{"pagination": map[string]any{"total_pages": 2}},
			})
		} else {
			body, _ = json.Marshal(map[string]any{
				"data": []map[string]any{
					{"id": "2", "attributes": map[string]any{"name": "Savings", "type": "asset", "currency_code": "USD"}},
				},
				"meta": map[string]any{"pagination": map[string]any{"total_pages": 2}},
			})
		}
		_, _ = w.Write(body)
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	accounts, err := client.ListAccounts(context.Background(), "asset")
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, accounts, 2)
	require.Equal(t, "Checking", accounts[0].Name)
	require.Equal(t, "Savings", accounts[1].Name)
}
