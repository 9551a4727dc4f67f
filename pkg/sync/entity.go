package sync

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/adsync/pkg/graph"
	"github.com/ajitpratap0/adsync/pkg/store"
)

// Mode selects full or incremental fetching. ModeAuto defers to first-sync
// detection: a scope with no stored top-of-hierarchy rows is synced full.
type Mode string

const (
	ModeAuto        Mode = ""
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// Scope is the top-level unit a sync runs against: one ad account or one
// content page. Created per sync invocation and discarded after use.
type Scope struct {
	Key       string // checkpoint key, e.g. "act_123" or "page_456"
	AccountID int64
	PageID    int64
	IGUserID  int64
	Portfolio string
	// Token is the page-scoped access token when the registry has one;
	// empty means the run's user token is used.
	Token string
}

// AccountScope builds a Scope for an ad account.
func AccountScope(ref store.AccountRef) Scope {
	return Scope{
		Key:       fmt.Sprintf("act_%d", ref.AdAccountID),
		AccountID: ref.AdAccountID,
		Portfolio: ref.PortfolioCode,
	}
}

// PageScope builds a Scope for a content page.
func PageScope(ref store.PageRef) Scope {
	return Scope{
		Key:      fmt.Sprintf("page_%d", ref.PageID),
		PageID:   ref.PageID,
		IGUserID: ref.IGUserID,
		Token:    ref.AccessToken,
	}
}

// Options carries the per-run knobs every sync call takes.
type Options struct {
	Mode       Mode
	WindowDays int
	PageLimit  int
}

// RefCheck declares a foreign-key existence check: transformed records whose
// ItemField is not among the parent table's stored keys are skipped instead
// of failing the insert.
type RefCheck struct {
	Table     string                   // parent table, e.g. "campaigns"
	Column    string                   // parent key column, e.g. "campaign_id"
	Filter    func(s Scope) store.Record // how to scope the parent set
	ItemField string                   // key in the transformed record
}

// Entity describes one syncable entity kind. The engine is generic; all
// per-entity specialization lives here.
type Entity struct {
	// Name keys checkpoints, logs, and metrics
	Name string
	// Path renders the endpoint for a scope, e.g. act_123/campaigns
	Path func(s Scope) string
	// Fields is the field list requested from the API
	Fields []string
	// Spec declares the destination table and upsert policy
	Spec store.TableSpec
	// Transform converts one raw item into a storable record.
	// Returning (nil, nil) skips the item (missing identifying fields).
	Transform func(item map[string]interface{}, s Scope) (store.Record, error)
	// CutoffFields names the vendor timestamps checked against the
	// incremental cutoff client-side; empty means no client-side filter.
	CutoffFields []string
	// ServerFilter, when set, narrows incremental fetches server-side.
	// Whether an endpoint supports this is declared here at integration
	// time, never probed by catching errors.
	ServerFilter func(since time.Time, p graph.Params)
	// ExtraParams adds fixed request parameters (level, time_increment,
	// date presets).
	ExtraParams func(opts Options, p graph.Params)
	// RefCheck optionally validates a foreign key before storage.
	RefCheck *RefCheck
	// FirstSyncTable and FirstSyncFilter drive first-sync detection for
	// ModeAuto: zero matching rows force a full sync.
	FirstSyncTable  string
	FirstSyncFilter func(s Scope) store.Record
}
