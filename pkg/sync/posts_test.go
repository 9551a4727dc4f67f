package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageTestScope() Scope {
	return Scope{Key: "page_77", PageID: 77, IGUserID: 88}
}

func TestFacebookPostsExtractAttachmentMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"id":"77_1","message":"video post","created_time":"2026-02-28T10:00:00+0000",
			 "permalink_url":"https://fb.test/77_1",
			 "attachments":{"data":[{"media_type":"video","media":{"image":{"src":"https://cdn.test/preview.jpg"},"source":"https://cdn.test/stream.mp4"}}]}},
			{"id":"77_2","message":"bare post","created_time":"2026-02-28T11:00:00+0000"}
		],"paging":{}}`)
	}))
	defer srv.Close()

	eng, mem := newTestEngine(t, srv.URL)
	res := eng.Sync(context.Background(), FacebookPosts(), pageTestScope(), Options{Mode: ModeFull, WindowDays: 30, PageLimit: 100})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 2, res.Saved)

	rows := mem.Rows("posts")
	require.Len(t, rows, 2)
	assert.Equal(t, "facebook", rows[0]["platform"])
	assert.Equal(t, "VIDEO", rows[0]["media_type"])
	assert.Equal(t, "https://cdn.test/preview.jpg", rows[0]["thumbnail_url"], "preview image beats the stream URL")
	assert.Equal(t, "77_1", rows[0]["effective_object_story_id"])
	assert.Nil(t, rows[1]["media_type"])
}

func TestInstagramPostsFallBackToMediaURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/88/media", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"id":"900","caption":"photo","media_type":"IMAGE","media_url":"https://ig.test/img.jpg",
			 "permalink":"https://ig.test/p/900","timestamp":"2026-02-28T10:00:00+0000"},
			{"id":"901","caption":"reel","media_type":"REEL","media_url":"https://ig.test/reel.mp4",
			 "thumbnail_url":"https://ig.test/reel.jpg","timestamp":"2026-02-28T11:00:00+0000"}
		],"paging":{}}`)
	}))
	defer srv.Close()

	eng, mem := newTestEngine(t, srv.URL)
	res := eng.Sync(context.Background(), InstagramPosts(), pageTestScope(), Options{Mode: ModeFull, WindowDays: 30, PageLimit: 100})

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 2, res.Saved)

	rows := mem.Rows("posts")
	require.Len(t, rows, 2)
	assert.Equal(t, "instagram", rows[0]["platform"])
	assert.Equal(t, "https://ig.test/img.jpg", rows[0]["thumbnail_url"], "images use the media itself")
	assert.Equal(t, "900", rows[0]["ig_media_id"])
	assert.Equal(t, "https://ig.test/reel.jpg", rows[1]["thumbnail_url"])
	assert.Equal(t, "REEL", rows[1]["media_type"])
}

func TestPostsShareOneTableAcrossPlatforms(t *testing.T) {
	fb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","message":"fb","created_time":"2026-02-28T10:00:00+0000"}],"paging":{}}`)
	}))
	defer fb.Close()
	ig := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1","caption":"ig","media_type":"IMAGE","timestamp":"2026-02-28T10:00:00+0000"}],"paging":{}}`)
	}))
	defer ig.Close()

	engFB, mem := newTestEngine(t, fb.URL)
	require.True(t, engFB.Sync(context.Background(), FacebookPosts(), pageTestScope(), Options{Mode: ModeFull, WindowDays: 30, PageLimit: 100}).OK())

	engIG, _ := newTestEngine(t, ig.URL)
	engIG.Repo = mem
	require.True(t, engIG.Sync(context.Background(), InstagramPosts(), pageTestScope(), Options{Mode: ModeFull, WindowDays: 30, PageLimit: 100}).OK())

	assert.Len(t, mem.Rows("posts"), 2, "same post id on different platforms stays distinct")
}
