// Package dmsclient talks to the document-management system (a
// Paperless-ngx-compatible REST API) that holds scanned receipts and
// invoices: list/filter, fetch detail, and download originals. Grounded on
// original_source/src/paperless_firefly/paperless_client/client.py, ported
// onto resty + the shared httpclient retry policy in the teacher's manner
// of wrapping one client struct per upstream dependency.
package dmsclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/LeJamon/ledgerbridge/internal/apperrors"
	"github.com/LeJamon/ledgerbridge/internal/httpclient"
	"github.com/LeJamon/ledgerbridge/internal/logging"
)

// Document mirrors a list/detail response document (spec.md §3, Document,
// plus the OCR content field the extractor strategies read from).
type Document struct {
	ID                  int64
	Title               string
	Content             string
	Created             string
	Added               string
	Modified            string
	Correspondent       string
	CorrespondentID     int64
	DocumentType        string
	DocumentTypeID      int64
	Tags                []string
	TagIDs              []int64
	ArchiveSerialNumber *int64
	OriginalFileName    string
	CustomFields        map[string]any
	DownloadURL         string
}

// Filter narrows ListDocuments. Zero TagIDs, DocumentTypeID,
// CorrespondentID and Query are omitted from the request; a zero PageSize
// is sent as 25 and an empty Ordering as "-added".
type Filter struct {
	TagIDs            []int64
	DocumentTypeID    int64
	CorrespondentID   int64
	Query             string
	PageSize          int
	Ordering          string
}

// Client is the DMS-facing contract the extractor and reconciliation
// pipeline depend on.
type Client interface {
	ListDocuments(ctx context.Context, filter Filter) (*Cursor, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	Download(ctx context.Context, id int64) ([]byte, string, error)
}

// Cursor iterates a paginated document listing one page at a time,
// restartable from its current Page so a long-running sync can resume.
type Cursor struct {
	client *restyClient
	filter Filter
	Page   int
	done   bool
}

// Next fetches the next page. The page on which the upstream reports no
// further page is returned with done=true; calls after that return an
// empty slice and done=true without a request.
func (c *Cursor) Next(ctx context.Context) ([]Document, bool, error) {
	if c.done {
		return nil, true, nil
	}
	c.Page++
	docs, hasNext, err := c.client.listPage(ctx, c.filter, c.Page)
	if err != nil {
		return nil, false, err
	}
	if !hasNext {
		c.done = true
	}
	return docs, !hasNext, nil
}

type restyClient struct {
	http       *resty.Client
	maxRetries uint
	log        logging.Logger
}

// New builds a resty-backed Client authenticating with a DMS API token.
func New(baseURL, token string, timeout time.Duration, maxRetries uint, log logging.Logger) Client {
	if log == nil {
		log = logging.NoOp()
	}
	c := httpclient.New(httpclient.Options{BaseURL: baseURL, Timeout: timeout, Logger: log})
	c.SetHeader("Authorization", "Token "+token)
	return &restyClient{http: c, maxRetries: maxRetries, log: log.With("dmsclient")}
}

func (c *restyClient) ListDocuments(ctx context.Context, filter Filter) (*Cursor, error) {
	return &Cursor{client: c, filter: filter}, nil
}

func (c *restyClient) listPage(ctx context.Context, filter Filter, page int) ([]Document, bool, error) {
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}
	ordering := filter.Ordering
	if ordering == "" {
		ordering = "-added"
	}

	req := c.http.R().SetContext(ctx).SetQueryParams(map[string]string{
		"page_size": strconv.Itoa(pageSize),
		"ordering":  ordering,
		"page":      strconv.Itoa(page),
	})
	if len(filter.TagIDs) > 0 {
		ids := make([]string, len(filter.TagIDs))
		for i, id := range filter.TagIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		req.SetQueryParam("tags__id__all", strings.Join(ids, ","))
	}
	if filter.DocumentTypeID != 0 {
		req.SetQueryParam("document_type__id", strconv.FormatInt(filter.DocumentTypeID, 10))
	}
	if filter.CorrespondentID != 0 {
		req.SetQueryParam("correspondent__id", strconv.FormatInt(filter.CorrespondentID, 10))
	}
	if filter.Query != "" {
		req.SetQueryParam("query", filter.Query)
	}

	var listResp listResponse
	resp, err := httpclient.Do(ctx, c.maxRetries, func() (*resty.Response, error) {
		return req.SetResult(&listResp).Get("/api/documents/")
	})
	if err != nil {
		return nil, false, apperrors.Wrap(err, "dmsclient.listPage")
	}
	if resp.IsError() {
		return nil, false, remoteError(resp)
	}

	docs := make([]Document, 0, len(listResp.Results))
	for _, d := range listResp.Results {
		docs = append(docs, d.toDocument(c.http.BaseURL))
	}
	return docs, listResp.Next != "", nil
}

func (c *restyClient) GetDocument(ctx context.Context, id int64) (*Document, error) {
	var raw documentResponse
	resp, err := httpclient.Do(ctx, c.maxRetries, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).SetResult(&raw).Get(fmt.Sprintf("/api/documents/%d/", id))
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "dmsclient.GetDocument")
	}
	if resp.IsError() {
		return nil, remoteError(resp)
	}

	doc := raw.toDocument(c.http.BaseURL)

	for _, tagID := range raw.Tags {
		var tag nameResponse
		if tr, err := c.http.R().SetContext(ctx).SetResult(&tag).Get(fmt.Sprintf("/api/tags/%d/", tagID)); err == nil && !tr.IsError() {
			doc.Tags = append(doc.Tags, tag.Name)
		}
	}
	if raw.Correspondent != 0 {
		var corr nameResponse
		if cr, err := c.http.R().SetContext(ctx).SetResult(&corr).Get(fmt.Sprintf("/api/correspondents/%d/", raw.Correspondent)); err == nil && !cr.IsError() {
			doc.Correspondent = corr.Name
		}
	}
	if raw.DocumentType != 0 {
		var dt nameResponse
		if tr, err := c.http.R().SetContext(ctx).SetResult(&dt).Get(fmt.Sprintf("/api/document_types/%d/", raw.DocumentType)); err == nil && !tr.IsError() {
			doc.DocumentType = dt.Name
		}
	}
	return &doc, nil
}

func (c *restyClient) Download(ctx context.Context, id int64) ([]byte, string, error) {
	resp, err := httpclient.Do(ctx, c.maxRetries, func() (*resty.Response, error) {
		return c.http.R().SetContext(ctx).
			SetQueryParam("original", "true").
			SetDoNotParseResponse(false).
			Get(fmt.Sprintf("/api/documents/%d/download/", id))
	})
	if err != nil {
		return nil, "", apperrors.Wrap(err, "dmsclient.Download")
	}
	if resp.IsError() {
		return nil, "", remoteError(resp)
	}

	filename := fmt.Sprintf("document_%d", id)
	if disp := resp.Header().Get("Content-Disposition"); disp != "" {
		if _, after, found := strings.Cut(disp, "filename="); found {
			filename = strings.Trim(after, `"'`)
		}
	}
	return resp.Body(), filename, nil
}

func remoteError(resp *resty.Response) error {
	return &apperrors.RemoteAPIError{
		Status:  resp.StatusCode(),
		Message: resp.Status(),
	}
}

// listResponse/documentResponse mirror Paperless-ngx's raw JSON shape
// (snake_case fields, ids instead of names for relations).
type listResponse struct {
	Count    int                `json:"count"`
	Next     string             `json:"next"`
	Previous string             `json:"previous"`
	Results  []documentResponse `json:"results"`
}

type documentResponse struct {
	ID                  int64          `json:"id"`
	Title               string         `json:"title"`
	Content             string         `json:"content"`
	Created             string         `json:"created"`
	Added               string         `json:"added"`
	Modified            string         `json:"modified"`
	Correspondent       int64          `json:"correspondent"`
	DocumentType        int64          `json:"document_type"`
	Tags                []int64        `json:"tags"`
	ArchiveSerialNumber *int64         `json:"archive_serial_number"`
	OriginalFileName    string         `json:"original_file_name"`
	CustomFields        []customField  `json:"custom_fields"`
}

type customField struct {
	Field string `json:"field"`
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type nameResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (d documentResponse) toDocument(baseURL string) Document {
	fields := make(map[string]any, len(d.CustomFields))
	for _, cf := range d.CustomFields {
		key := cf.Field
		if key == "" {
			key = cf.Name
		}
		if key == "" {
			key = "unknown"
		}
		fields[key] = cf.Value
	}
	tagIDs := append([]int64(nil), d.Tags...)
	return Document{
		ID:                  d.ID,
		Title:               d.Title,
		Content:             d.Content,
		Created:             d.Created,
		Added:               d.Added,
		Modified:            d.Modified,
		CorrespondentID:     d.Correspondent,
		DocumentTypeID:      d.DocumentType,
		TagIDs:              tagIDs,
		ArchiveSerialNumber: d.ArchiveSerialNumber,
		OriginalFileName:    d.OriginalFileName,
		CustomFields:        fields,
		DownloadURL:         fmt.Sprintf("%s/api/documents/%d/download/", strings.TrimRight(baseURL, "/"), d.ID),
	}
}
