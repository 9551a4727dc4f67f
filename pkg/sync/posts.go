package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// postsSpec is the shared posts table: Facebook and Instagram posts land in
// one table keyed by (platform, post_id).
var postsSpec = store.TableSpec{
	Table: "posts",
	Columns: []string{
		"platform", "post_id", "page_id", "message", "media_type",
		"thumbnail_url", "permalink_url", "created_time",
		"effective_object_story_id", "ig_media_id",
	},
	ConflictKey: []string{"platform", "post_id"},
	TrackSeen:   true,
}

// FacebookPosts returns the Facebook page post descriptor.
func FacebookPosts() Entity {
	return Entity{
		Name: "fb_posts",
		Path: func(s Scope) string { return fmt.Sprintf("%d/posts", s.PageID) },
		Fields: []string{
			"id", "message", "created_time", "permalink_url",
			"attachments{media_type,media,subattachments}",
		},
		Spec:         postsSpec,
		CutoffFields: []string{"created_time"},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id := Str(item, "id")
			if id == "" {
				return nil, nil
			}

			mediaType, thumb := facebookMedia(item)

			rec := store.Record{
				"platform":      "facebook",
				"post_id":       id,
				"page_id":       s.PageID,
				"message":       StrOrNil(item, "message"),
				"media_type":    mediaType,
				"thumbnail_url": thumb,
				"permalink_url": StrOrNil(item, "permalink_url"),
				// FB post ids double as object story ids on ads
				"effective_object_story_id": id,
			}
			if t, ok := ParseMetaTime(Str(item, "created_time")); ok {
				rec["created_time"] = t
			}
			return rec, nil
		},
	}
}

// InstagramPosts returns the Instagram media descriptor. Pages without a
// linked Instagram account are skipped by the caller, not here.
func InstagramPosts() Entity {
	return Entity{
		Name: "ig_posts",
		Path: func(s Scope) string { return fmt.Sprintf("%d/media", s.IGUserID) },
		Fields: []string{
			"id", "caption", "media_type", "media_url",
			"thumbnail_url", "permalink", "timestamp",
		},
		Spec:         postsSpec,
		CutoffFields: []string{"timestamp"},
		// /media accepts a UNIX since parameter, so incremental runs
		// narrow server-side instead of paging through history.
		ServerFilter: func(since time.Time, p graph.Params) {
			p["since"] = strconv.FormatInt(since.Unix(), 10)
		},
		Transform: func(item map[string]interface{}, s Scope) (store.Record, error) {
			id := Str(item, "id")
			if id == "" {
				return nil, nil
			}

			thumb := StrOrNil(item, "thumbnail_url")
			if thumb == nil {
				// images have no thumbnail; the media itself serves
				thumb = StrOrNil(item, "media_url")
			}

			rec := store.Record{
				"platform":      "instagram",
				"post_id":       id,
				"page_id":       s.PageID,
				"message":       StrOrNil(item, "caption"),
				"media_type":    NormalizeMediaType(Str(item, "media_type")),
				"thumbnail_url": thumb,
				"permalink_url": StrOrNil(item, "permalink"),
				"ig_media_id":   id,
			}
			if t, ok := ParseMetaTime(Str(item, "timestamp")); ok {
				rec["created_time"] = t
			}
			return rec, nil
		},
	}
}

// facebookMedia extracts the media type and thumbnail from a post's first
// attachment. Video attachments carry the preview under media.image and the
// stream under media.source; the preview is what the UI wants.
func facebookMedia(item map[string]interface{}) (interface{}, interface{}) {
	attachments, ok := item["attachments"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	data, ok := attachments["data"].([]interface{})
	if !ok || len(data) == 0 {
		return nil, nil
	}
	att, ok := data[0].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	mediaType := NormalizeMediaType(Str(att, "media_type"))

	var thumb interface{}
	if media, ok := att["media"].(map[string]interface{}); ok {
		if image, ok := media["image"].(map[string]interface{}); ok {
			thumb = StrOrNil(image, "src")
		}
		if thumb == nil {
			thumb = StrOrNil(media, "source")
		}
	}
	return mediaType, thumb
}
