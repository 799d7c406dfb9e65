package salesforce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteptoe/sfdump/internal/core/domain"
)

const testVersion = "v60.0"

func newTestClient(t *testing.T, r chi.Router) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		InstanceURL: srv.URL,
		AccessToken: "tok",
		APIVersion:  testVersion,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(v))
}

func page(done bool, next string, records ...map[string]any) map[string]any {
	p := map[string]any{"totalSize": len(records), "done": done, "records": records}
	if next != "" {
		p["nextRecordsUrl"] = next
	}
	return p
}

func TestListFiles_ModernFollowsPagination(t *testing.T) {
	var soql, auth string
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, testVersion, chi.URLParam(req, "version"))
		soql = req.URL.Query().Get("q")
		auth = req.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, page(false, "/services/data/v60.0/query/01gXX-2000",
			map[string]any{"Id": "068A", "ContentDocumentId": "069A", "Title": "Quote", "FileExtension": "pdf",
				"ContentSize": 1024, "CreatedDate": "2024-01-15T10:30:00.000+0000",
				"FirstPublishLocationId": "006A", "FirstPublishLocation": map[string]any{"Type": "Opportunity"}},
			map[string]any{"Id": "068B", "ContentDocumentId": "069B", "Title": "Notes", "FileExtension": "txt",
				"ContentSize": 10, "CreatedDate": "2024-02-01T08:00:00.000+0100",
				"FirstPublishLocationId": nil, "FirstPublishLocation": nil},
		))
	})
	r.Get("/services/data/{version}/query/{locator}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "01gXX-2000", chi.URLParam(req, "locator"))
		writeJSON(t, w, http.StatusOK, page(true, "",
			map[string]any{"Id": "068C", "ContentDocumentId": "069C", "Title": "Logo", "FileExtension": "png",
				"ContentSize": 5, "CreatedDate": nil},
		))
	})
	c := newTestClient(t, r)

	recs, err := c.ListFiles(context.Background(), domain.KindModernDocument, domain.ListFilter{Where: "Title LIKE 'Q%'"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, contentVersionSOQL+" AND (Title LIKE 'Q%')", soql)
	require.Len(t, recs, 3)
	assert.Equal(t, domain.FileRecord{
		ID:         "068A",
		DocumentID: "069A",
		Kind:       domain.KindModernDocument,
		ParentType: "Opportunity",
		ParentID:   "006A",
		Title:      "Quote",
		Extension:  "pdf",
		SizeBytes:  1024,
		CreatedAt:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}, recs[0])
	assert.Equal(t, time.Date(2024, 2, 1, 7, 0, 0, 0, time.UTC), recs[1].CreatedAt)
	assert.Empty(t, recs[1].ParentType)
	assert.Empty(t, recs[1].ParentID)
	assert.Equal(t, "068C", recs[2].ID)
	assert.True(t, recs[2].CreatedAt.IsZero())
}

func TestListFiles_LegacyParentAndExtension(t *testing.T) {
	var soql string
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		soql = req.URL.Query().Get("q")
		writeJSON(t, w, http.StatusOK, page(true, "",
			map[string]any{"Id": "00PA", "ParentId": "006A", "Parent": map[string]any{"Type": "Opportunity"},
				"Name": "contract.v2.docx", "BodyLength": 300},
			map[string]any{"Id": "00PB", "ParentId": "001B", "Parent": nil, "Name": "README", "BodyLength": 0},
		))
	})
	c := newTestClient(t, r)

	recs, err := c.ListFiles(context.Background(), domain.KindLegacyAttachment, domain.ListFilter{})
	require.NoError(t, err)

	assert.Equal(t, attachmentSOQL, soql)
	require.Len(t, recs, 2)
	assert.Equal(t, "Opportunity", recs[0].ParentType)
	assert.Equal(t, "006A", recs[0].ParentID)
	assert.Equal(t, "docx", recs[0].Extension)
	assert.Equal(t, int64(300), recs[0].SizeBytes)
	assert.Equal(t, "", recs[1].ParentType)
	assert.Equal(t, "", recs[1].Extension)
}

func TestListQuery(t *testing.T) {
	q, err := listQuery(domain.KindLegacyAttachment, domain.ListFilter{Where: "  ParentId = '001X' "})
	require.NoError(t, err)
	assert.Equal(t, attachmentSOQL+" WHERE (ParentId = '001X')", q)

	q, err = listQuery(domain.KindModernDocument, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, contentVersionSOQL, q)

	_, err = listQuery("bogus", domain.ListFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestListFiles_FailedPageReturnsNoRecords(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusOK, page(false, "/services/data/v60.0/query/next",
			map[string]any{"Id": "068A"}))
	})
	r.Get("/services/data/{version}/query/{locator}", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusServiceUnavailable, []map[string]any{{"message": "down", "errorCode": "SERVER_UNAVAILABLE"}})
	})
	c := newTestClient(t, r)

	recs, err := c.ListFiles(context.Background(), domain.KindModernDocument, domain.ListFilter{})
	require.Error(t, err)
	assert.Nil(t, recs)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, int32(MaxRetries+1), calls.Load())
}

func TestListFiles_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(t, w, http.StatusOK, page(true, "", map[string]any{"Id": "00PA", "Name": "a.txt"}))
	})
	c := newTestClient(t, r)

	recs, err := c.ListFiles(context.Background(), domain.KindLegacyAttachment, domain.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListFiles_BadQueryIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusBadRequest, []map[string]any{{"message": "unexpected token", "errorCode": "MALFORMED_QUERY"}})
	})
	c := newTestClient(t, r)

	_, err := c.ListFiles(context.Background(), domain.KindLegacyAttachment, domain.ListFilter{Where: "oops"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "MALFORMED_QUERY", apiErr.ErrorCode)
	assert.Equal(t, "unexpected token", apiErr.Message)
}

func TestListLinks(t *testing.T) {
	var soql string
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		soql = req.URL.Query().Get("q")
		writeJSON(t, w, http.StatusOK, page(true, "",
			map[string]any{"Id": "06AA", "ContentDocumentId": "069A", "LinkedEntityId": "001A",
				"LinkedEntity": map[string]any{"Type": "Account"}},
			map[string]any{"Id": "06AB", "ContentDocumentId": "069A", "LinkedEntityId": "005U",
				"LinkedEntity": map[string]any{"Type": "User"}},
		))
	})
	c := newTestClient(t, r)

	links, err := c.ListLinks(context.Background(), []string{"069A", "069B"})
	require.NoError(t, err)

	assert.Contains(t, soql, "FROM ContentDocumentLink WHERE ContentDocumentId IN ('069A', '069B')")
	assert.Equal(t, []domain.FileLink{
		{ID: "06AA", DocumentID: "069A", LinkedEntityID: "001A", LinkedEntityType: "Account"},
		{ID: "06AB", DocumentID: "069A", LinkedEntityID: "005U", LinkedEntityType: "User"},
	}, links)
}

func TestListLinks_EmptyMakesNoRequest(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		t.Errorf("unexpected request %s", req.URL)
	})
	c := newTestClient(t, r)

	links, err := c.ListLinks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestQueryLabels(t *testing.T) {
	var soql string
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		soql = req.URL.Query().Get("q")
		writeJSON(t, w, http.StatusOK, page(true, "",
			map[string]any{"Id": "a01A", "Invoice_Number__c": "INV-1"},
			map[string]any{"Id": "a01B", "Invoice_Number__c": nil},
			map[string]any{"Id": "a01C", "Invoice_Number__c": 42},
		))
	})
	c := newTestClient(t, r)

	labels, err := c.QueryLabels(context.Background(), "Invoice__c", "Invoice_Number__c", []string{"a01A", "a01B", "a01C", "a01D"})
	require.NoError(t, err)

	assert.Equal(t, "SELECT Id, Invoice_Number__c FROM Invoice__c WHERE Id IN ('a01A', 'a01B', 'a01C', 'a01D')", soql)
	assert.Equal(t, map[string]string{"a01A": "INV-1", "a01B": "", "a01C": "42"}, labels)
}

func TestQueryLabels_InvalidField(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, []map[string]any{{
			"message":   "No such column 'Name' on entity 'Case'",
			"errorCode": CodeInvalidField,
		}})
	})
	c := newTestClient(t, r)

	_, err := c.QueryLabels(context.Background(), "Case", "Name", []string{"500A"})
	assert.ErrorIs(t, err, domain.ErrLabelFieldMissing)
	assert.True(t, IsInvalidField(err))
}

func TestQueryLabels_RejectsNonAPINames(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/*", func(w http.ResponseWriter, req *http.Request) {
		t.Errorf("unexpected request %s", req.URL)
	})
	c := newTestClient(t, r)

	_, err := c.QueryLabels(context.Background(), "Account", "Name FROM User --", []string{"001A"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFetch(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/services/data/{version}/sobjects/{object}/{id}/{field}", func(w http.ResponseWriter, req *http.Request) {
		object, id, field := chi.URLParam(req, "object"), chi.URLParam(req, "id"), chi.URLParam(req, "field")
		switch {
		case object == "Attachment" && field == "Body" && id == "00PA":
			io.WriteString(w, "legacy bytes")
		case object == "ContentVersion" && field == "VersionData" && id == "068A":
			io.WriteString(w, "modern bytes")
		case id == "gone":
			writeJSON(t, w, http.StatusNotFound, []map[string]any{{"message": "deleted", "errorCode": CodeNotFound}})
		case id == "secret":
			writeJSON(t, w, http.StatusForbidden, []map[string]any{{"message": "no access", "errorCode": "INSUFFICIENT_ACCESS"}})
		default:
			http.NotFound(w, req)
		}
	})
	c := newTestClient(t, r)
	ctx := context.Background()

	read := func(rec domain.FileRecord) (string, error) {
		body, err := c.Fetch(ctx, rec)
		if err != nil {
			return "", err
		}
		defer body.Close()
		b, err := io.ReadAll(body)
		return string(b), err
	}

	got, err := read(domain.FileRecord{ID: "00PA", Kind: domain.KindLegacyAttachment})
	require.NoError(t, err)
	assert.Equal(t, "legacy bytes", got)

	got, err = read(domain.FileRecord{ID: "068A", DocumentID: "069A", Kind: domain.KindModernDocument})
	require.NoError(t, err)
	assert.Equal(t, "modern bytes", got)

	_, err = read(domain.FileRecord{ID: "gone", Kind: domain.KindLegacyAttachment})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, domain.IsRetryable(err))

	_, err = read(domain.FileRecord{ID: "secret", Kind: domain.KindModernDocument})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.True(t, IsForbidden(err))

	_, err = read(domain.FileRecord{ID: "x", Kind: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFetch_RequestLimitPausesClient(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/services/data/{version}/sobjects/{object}/{id}/{field}", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set(HeaderRetryAfter, "120")
		writeJSON(t, w, http.StatusForbidden, []map[string]any{{
			"message":   "TotalRequests Limit exceeded.",
			"errorCode": CodeRequestLimitExceeded,
		}})
	})
	c := newTestClient(t, r)

	_, err := c.Fetch(context.Background(), domain.FileRecord{ID: "068A", Kind: domain.KindModernDocument})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.True(t, IsRateLimited(err))
	assert.False(t, IsForbidden(err))
	assert.True(t, domain.IsRetryable(err))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.rateLimiter.Wait(ctx), context.DeadlineExceeded)
}

func TestClient_TracksLimitInfo(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set(HeaderLimitInfo, "api-usage=125/15000")
		writeJSON(t, w, http.StatusOK, page(true, ""))
	})
	c := newTestClient(t, r)

	_, err := c.ListFiles(context.Background(), domain.KindModernDocument, domain.ListFilter{})
	require.NoError(t, err)

	used, limit := c.RateLimiter().Usage()
	assert.Equal(t, 125, used)
	assert.Equal(t, 15000, limit)
}

func TestClient_UnauthorizedIsFatal(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/services/data/{version}/query", func(w http.ResponseWriter, req *http.Request) {
		calls.Add(1)
		writeJSON(t, w, http.StatusUnauthorized, []map[string]any{{"message": "Session expired", "errorCode": CodeInvalidSession}})
	})
	c := newTestClient(t, r)

	_, err := c.ListFiles(context.Background(), domain.KindModernDocument, domain.ListFilter{})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAPIError_Unwrap(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"not found", 404, CodeNotFound, domain.ErrNotFound},
		{"forbidden", 403, "INSUFFICIENT_ACCESS", domain.ErrForbidden},
		{"request limit", 403, CodeRequestLimitExceeded, domain.ErrRateLimited},
		{"too many requests", 429, "", domain.ErrRateLimited},
		{"unauthorized", 401, CodeInvalidSession, domain.ErrSourceUnavailable},
		{"invalid field", 400, CodeInvalidField, domain.ErrLabelFieldMissing},
		{"malformed", 400, "MALFORMED_QUERY", domain.ErrInvalidInput},
		{"server error", 500, "", domain.ErrTransient},
		{"unavailable", 503, "", domain.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, ErrorCode: tt.code}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewAPIError_NonJSONBody(t *testing.T) {
	e := newAPIError(502, "/x", []byte("<html>Bad Gateway</html>\n"))
	assert.Equal(t, "<html>Bad Gateway</html>", e.Message)
	assert.Empty(t, e.ErrorCode)

	e = newAPIError(503, "/x", nil)
	assert.Equal(t, "Service Unavailable", e.Message)
	assert.True(t, strings.HasPrefix(e.Error(), "salesforce: API error 503"))
}

func TestParseLimitInfo(t *testing.T) {
	used, limit, ok := parseLimitInfo("api-usage=25/15000")
	require.True(t, ok)
	assert.Equal(t, 25, used)
	assert.Equal(t, 15000, limit)

	used, limit, ok = parseLimitInfo("per-app-api-usage=1/100(appName=x), api-usage=7/50")
	require.True(t, ok)
	assert.Equal(t, 7, used)
	assert.Equal(t, 50, limit)

	_, _, ok = parseLimitInfo("api-usage=abc")
	assert.False(t, ok)
	_, _, ok = parseLimitInfo("")
	assert.False(t, ok)
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'O\'Brien'`, quote("O'Brien"))
	assert.Equal(t, `'a\\b'`, quote(`a\b`))
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{InstanceURL: "https://acme.my.salesforce.com", AccessToken: "t", APIVersion: "v60.0"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no token", func(c *Config) { c.AccessToken = "" }},
		{"no url", func(c *Config) { c.InstanceURL = "" }},
		{"bad scheme", func(c *Config) { c.InstanceURL = "ftp://acme" }},
		{"bad version", func(c *Config) { c.APIVersion = "60.0" }},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidInput)
		})
	}
}

func TestRateLimiter_Throttles(t *testing.T) {
	rl := NewRateLimiter(1)
	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx))

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(short))

	unlimited := NewRateLimiter(0)
	for range 100 {
		require.NoError(t, unlimited.Wait(ctx))
	}
}
