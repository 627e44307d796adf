package dmsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestListDocumentsPaginatesUntilDone(t *testing.T) {
	pages := map[string]listResponse{
		"1": {Results: []documentResponse{{ID: 1, Title: "Receipt A"}}, Next: "page2"},
		"2": {Results: []documentResponse{{ID: 2, Title: "Receipt B"}}, Next: ""},
	}
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Token secret", r.Header.Get("Authorization"))
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(pages[page]))
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	cursor, err := client.ListDocuments(context.Background(), Filter{PageSize: 1})
	require.NoError(t, err)

	docs, done, err := cursor.Next(context.Background())
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, []Document{{ID: 1, Title: "Receipt A", CustomFields: map[string]any{}, DownloadURL: srv.URL + "/api/documents/1/download/"}}, docs)

	docs, done, err = cursor.Next(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, int64(2), docs[0].ID)

	docs, done, err = cursor.Next(context.Background())
	require.NoError(t, err)
	require.True(t, done)
	require.Empty(t, docs)
}

func TestGetDocumentResolvesRelationNames(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/documents/7/":
			_ = json.NewEncoder(w).Encode(documentResponse{ID: 7, Title: "Invoice", Tags: []int64{9}, Correspondent: 3, DocumentType: 4})
		case "/api/tags/9/":
			_ = json.NewEncoder(w).Encode(nameResponse{ID: 9, Name: "utilities"})
		case "/api/correspondents/3/":
			_ = json.NewEncoder(w).Encode(nameResponse{ID: 3, Name: "Acme Power Co"})
		case "/api/document_types/4/":
			_ = json.NewEncoder(w).Encode(nameResponse{ID: 4, Name: "invoice"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	doc, err := client.GetDocument(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "utilities", doc.Tags[0])
	require.Equal(t, "Acme Power Co", doc.Correspondent)
	require.Equal(t, "invoice", doc.DocumentType)
}

func TestDownloadReturnsFilenameFromContentDisposition(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="receipt.pdf"`)
		_, _ = w.Write([]byte("%PDF-1.4 fake bytes"))
	})

	client := New(srv.URL, "secret", time.Second, 0, nil)
	body, filename, err := client.Download(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, "receipt.pdf", filename)
	require.Equal(t, []byte("%PDF-1.4 fake bytes"), body)
}

func TestListDocumentsSurfacesRemoteAPIError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid token"}`))
	})

	client := New(srv.URL, "bad-token", time.Second, 0, nil)
	cursor, err := client.ListDocuments(context.Background(), Filter{})
	require.NoError(t, err)

	_, _, err = cursor.Next(context.Background())
	require.Error(t, err)
}

