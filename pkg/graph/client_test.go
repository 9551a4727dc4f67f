package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/adsync/pkg/errors"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) (*Client, *[]time.Duration) {
	t.Helper()

	c := NewClient(Config{
		BaseURL:     baseURL,
		Version:     "v21.0",
		AccessToken: "test-token",
		MaxRetries:  maxRetries,
		RetryDelay:  5 * time.Second,
	}, zap.NewNop())

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func pageBody(next string, ids ...int) string {
	data := ""
	for i, id := range ids {
		if i > 0 {
			data += ","
		}
		data += fmt.Sprintf(`{"id":"%d"}`, id)
	}
	paging := "{}"
	if next != "" {
		paging = fmt.Sprintf(`{"next":%q}`, next)
	}
	return fmt.Sprintf(`{"data":[%s],"paging":%s}`, data, paging)
}

func collectIDs(t *testing.T, p *Pager) []string {
	t.Helper()
	var ids []string
	for p.Next(context.Background()) {
		ids = append(ids, p.Item()["id"].(string))
	}
	return ids
}

func TestPagerWalksAllPagesInOrder(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "2":
			fmt.Fprint(w, pageBody(srv.URL+"/v21.0/act_1/campaigns?page=3", 3, 4))
		case "3":
			fmt.Fprint(w, pageBody("", 5))
		default:
			fmt.Fprint(w, pageBody(srv.URL+"/v21.0/act_1/campaigns?page=2", 1, 2))
		}
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	pager := c.GetPaged("act_1/campaigns", Params{"fields": "id"})

	ids := collectIDs(t, pager)
	require.NoError(t, pager.Err())
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestPagerFollowsNextURLVerbatim(t *testing.T) {
	// The cursor URL carries its own query; the original fields/limit params
	// must not be re-applied on cursor-following requests.
	var srv *httptest.Server
	var secondQuery string
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "cursorA" {
			secondQuery = r.URL.RawQuery
			fmt.Fprint(w, pageBody("", 2))
			return
		}
		fmt.Fprint(w, pageBody(srv.URL+"/v21.0/act_1/ads?after=cursorA", 1))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	pager := c.GetPaged("act_1/ads", Params{"fields": "id,name", "limit": "200"})

	ids := collectIDs(t, pager)
	require.NoError(t, pager.Err())
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.NotContains(t, secondQuery, "fields")
	assert.NotContains(t, secondQuery, "limit")
}

func TestPagerRetriesPageWithoutDuplicatingEarlierItems(t *testing.T) {
	var srv *httptest.Server
	var page2Calls int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			if atomic.AddInt32(&page2Calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":{"code":1,"message":"transient"}}`)
				return
			}
			fmt.Fprint(w, pageBody("", 3))
			return
		}
		fmt.Fprint(w, pageBody(srv.URL+"/v21.0/act_1/campaigns?page=2", 1, 2))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	pager := c.GetPaged("act_1/campaigns", Params{})

	ids := collectIDs(t, pager)
	require.NoError(t, pager.Err())
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, int32(2), atomic.LoadInt32(&page2Calls))
}

func TestGetRateLimitBackoffIsLinear(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":17,"message":"User request limit reached"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, 5)
	out, err := c.Get(context.Background(), "act_1", Params{})
	require.NoError(t, err)
	assert.Equal(t, "1", out["id"])

	// delay * (attempt+1): 5s then 10s
	require.Len(t, *slept, 2)
	assert.Equal(t, 5*time.Second, (*slept)[0])
	assert.Equal(t, 10*time.Second, (*slept)[1])
}

func TestGetRateLimitExhaustionSurfacesRateLimitError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":4,"message":"Application request limit reached"}}`)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, 2)
	_, err := c.Get(context.Background(), "act_1/insights", Params{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRateLimit))
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept,
		"no backoff after the final attempt")
}

func TestGetTimeoutExhaustionSkipsTerminalSleep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, 2)
	c.httpClient.Timeout = 20 * time.Millisecond

	_, err := c.Get(context.Background(), "act_1/campaigns", Params{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Len(t, *slept, 1, "one sleep between two attempts, none after the last")
}

func TestGetSurfacesLastErrorOnRetryExhaustion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":2,"message":"Service temporarily unavailable"}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	out, err := c.Get(context.Background(), "act_1/campaigns", Params{})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "Service temporarily unavailable")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryObjectAccessDenied(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"code":100,"error_subcode":33,"message":"Unsupported get request"}}`)
	}))
	defer srv.Close()

	c, slept := newTestClient(t, srv.URL, 3)
	_, err := c.Get(context.Background(), "act_1/campaigns", Params{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeObjectAccess))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, *slept)
}

func TestGetDoesNotRetryPermissionMissing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":200,"message":"Requires ads_read"}}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	_, err := c.Get(context.Background(), "act_1/campaigns", Params{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePermission))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetRetriesNonJSONBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, "<html>proxy error</html>")
			return
		}
		fmt.Fprint(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	out, err := c.Get(context.Background(), "act_1", Params{})
	require.NoError(t, err)
	assert.Equal(t, "1", out["id"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetSendsAccessToken(t *testing.T) {
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("access_token")
		fmt.Fprint(w, `{"id":"1"}`)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3)
	_, err := c.Get(context.Background(), "act_1", Params{})
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
}
