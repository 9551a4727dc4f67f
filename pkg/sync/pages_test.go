package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/adsync/pkg/store"
)

func TestImportPagesRegistersTokenAndIGLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/me/accounts", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "access_token")
		fmt.Fprint(w, `{"data":[
			{"id":"77","name":"Brand Page","access_token":"page-token-77",
			 "instagram_business_account":{"id":"88","username":"brand_ig"}},
			{"id":"79","name":"No IG Page","access_token":"page-token-79"}
		],"paging":{}}`)
	}))
	defer srv.Close()

	eng, mem := newTestEngine(t, srv.URL)
	res := eng.ImportPages(context.Background())

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 2, res.Saved)

	rows := mem.Rows("pages")
	require.Len(t, rows, 2)
	assert.Equal(t, int64(77), rows[0]["page_id"])
	assert.Equal(t, "page-token-77", rows[0]["page_access_token"])
	assert.Equal(t, int64(88), rows[0]["ig_user_id"])
	assert.Equal(t, "brand_ig", rows[0]["ig_username"])
	assert.Nil(t, rows[1]["ig_user_id"], "pages without an Instagram link stay unlinked")
}

func TestImportPagesFeedsThePostsFanOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"77","name":"Brand Page","access_token":"page-token-77",
			 "instagram_business_account":{"id":"88","username":"brand_ig"}}
		],"paging":{}}`)
	}))
	defer srv.Close()

	eng, mem := newTestEngine(t, srv.URL)
	require.True(t, eng.ImportPages(context.Background()).OK())

	refs, err := mem.ListPages(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, store.PageRef{PageID: 77, IGUserID: 88, AccessToken: "page-token-77"}, refs[0])

	scope := PageScope(refs[0])
	assert.Equal(t, "page_77", scope.Key)
	assert.Equal(t, int64(88), scope.IGUserID)
	assert.Equal(t, "page-token-77", scope.Token, "page jobs authenticate with the page token")
}
