package models

// Provenance tags which tier of the fallback chain produced a result set.
type Provenance string

const (
	ProvenanceCache          Provenance = "cache"
	ProvenanceLiveNative     Provenance = "live-native"
	ProvenanceLiveHTTP       Provenance = "live-http"
	ProvenanceStaticFallback Provenance = "static-fallback"
)

// RetrievalResult is the resolved alert set handed to aggregation and the API.
// Alerts keep the raw document shape so live hits and cached rows serialize
// identically.
type RetrievalResult struct {
	Alerts     []map[string]interface{} `json:"alerts"`
	Provenance Provenance               `json:"source"`
}

// RetrievalOptions are the force flags accepted by the retrieval chain; they
// map 1:1 to the API's query parameters.
type RetrievalOptions struct {
	ForceLive      bool
	ForceCacheOnly bool
	ForceStatic    bool
}

// SyncResult reports one batch sync run. Errors holds at most the first ten
// messages so a broadly failing batch cannot blow up responses or logs.
type SyncResult struct {
	Source    string                 `json:"source"`
	Fetched   int                    `json:"fetched"`
	Inserted  int                    `json:"inserted"`
	Updated   int                    `json:"updated"`
	Skipped   int                    `json:"skipped"`
	Errors    []string               `json:"errors"`
	PerTenant map[string]*SyncResult `json:"perTenant,omitempty"`
}

// MaxSyncErrors caps SyncResult.Errors.
const MaxSyncErrors = 10

// AppendError records an error message, dropping everything past the cap.
func (r *SyncResult) AppendError(msg string) {
	if len(r.Errors) < MaxSyncErrors {
		r.Errors = append(r.Errors, msg)
	}
}

// Merge folds a per-tenant result into an all-tenant total.
func (r *SyncResult) Merge(other *SyncResult) {
	if other == nil {
		return
	}
	r.Fetched += other.Fetched
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	for _, msg := range other.Errors {
		r.AppendError(msg)
	}
}
