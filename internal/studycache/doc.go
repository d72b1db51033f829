// Package studycache keeps a locally held, periodically refreshed view of
// the study registry so readers never wait on the network.
//
// RefreshAll reads the study count and then every study concurrently, with a
// bounded number of requests in flight. A study that fails to load is
// omitted and reported in Report.Partial; the refresh still succeeds. If the
// count itself cannot be read, the previous list is kept and a
// *FetchTotalFailure is returned.
//
// One Cache serves every view: All returns studies newest first and Active
// returns the submittable ones in id order. RefreshStats loads the aggregate
// record for one study, exposes min and max divided by 100, and records a
// failure as an explicit StatsFailed state instead of keeping stale data.
//
// Poller drives RefreshAll on an interval until Stop.
package studycache
