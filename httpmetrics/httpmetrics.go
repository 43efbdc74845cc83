// Package httpmetrics wraps an http.Handler with opencensus request
// accounting for the callable and trigger endpoints.
package httpmetrics

import (
	"net/http"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyPath   = tag.MustNewKey("path")
	keyMethod = tag.MustNewKey("method")
)

type Wrapper struct {
	requestCount     *stats.Int64Measure
	requestCountView *view.View

	inner http.Handler
}

func New(inner http.Handler) *Wrapper {
	r := &Wrapper{}

	r.requestCount = stats.Int64("requests", "", stats.UnitDimensionless)
	r.requestCountView = &view.View{
		Name:        "requests",
		Description: "Counter of callable and trigger requests that have been handled",

		TagKeys: []tag.Key{keyPath, keyMethod},

		Measure:     r.requestCount,
		Aggregation: view.Count(),
	}

	r.inner = inner

	return r
}

func (h *Wrapper) RegisterMetrics() {
	view.Register(h.requestCountView)
}

func (h *Wrapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.inner.ServeHTTP(w, r)

	glog.V(1).Infof("Served path=%q method=%q remoteaddr=%q", r.URL.Path, r.Method, r.RemoteAddr)

	stats.RecordWithOptions(
		r.Context(),
		stats.WithTags(
			tag.Insert(keyPath, r.URL.Path),
			tag.Insert(keyMethod, r.Method),
		),
		stats.WithMeasurements(h.requestCount.M(1)))
}
