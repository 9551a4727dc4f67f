package graph

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/ajitpratap0/adsync/pkg/errors"
)

// page is the Graph pagination envelope: {"data": [...], "paging": {"next": ...}}.
type page struct {
	Data   []map[string]interface{} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Pager walks a paged endpoint lazily. Items are yielded in API order,
// page by page; the next request is entirely determined by the vendor's
// paging.next URL, which already encodes the full prior query, so the
// caller's parameters are never resent on cursor-following requests.
//
// A Pager is not restartable and not safe for concurrent use. The consumer
// may stop iterating at any time; there is no cleanup obligation.
//
//	pager := client.GetPaged("act_123/campaigns", params)
//	for pager.Next(ctx) {
//	    item := pager.Item()
//	    ...
//	}
//	if err := pager.Err(); err != nil { ... }
type Pager struct {
	client   *Client
	endpoint string

	nextURL string
	items   []map[string]interface{}
	idx     int
	err     error
}

// GetPaged starts a lazy walk of a paged endpoint. Each page fetch goes
// through the same retry, backoff, and classification policy as Get; a
// permanently failing fetch ends iteration with Err set.
func (c *Client) GetPaged(path string, params Params) *Pager {
	return &Pager{
		client:   c,
		endpoint: path,
		nextURL:  c.buildURL(path, params),
		idx:      -1,
	}
}

// Next advances to the next item, fetching further pages as needed.
// It returns false when the sequence ends; Err distinguishes normal
// termination from a mid-iteration failure.
func (p *Pager) Next(ctx context.Context) bool {
	if p.err != nil {
		return false
	}

	p.idx++
	for p.idx >= len(p.items) {
		if p.nextURL == "" {
			return false
		}

		body, err := p.client.getWithRetry(ctx, p.nextURL, p.endpoint)
		if err != nil {
			p.err = err
			return false
		}

		var pg page
		if err := json.Unmarshal(body, &pg); err != nil {
			p.err = errors.Wrap(err, errors.ErrorTypeMalformed, "failed to decode page")
			return false
		}

		p.items = pg.Data
		p.idx = 0
		p.nextURL = pg.Paging.Next
	}

	return true
}

// Item returns the current item. Valid only after a true Next.
func (p *Pager) Item() map[string]interface{} {
	return p.items[p.idx]
}

// Err returns the error that ended iteration, if any.
func (p *Pager) Err() error {
	return p.err
}
