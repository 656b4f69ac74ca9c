package interfaces

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/yair/eventfeed/pkg/logger"
	"github.com/yair/eventfeed/pkg/metrics"
)

// NewRouter wires the feed API together with /health and, when m is set,
// /metrics.
func NewRouter(feed *FeedHandler, m *metrics.Metrics) *mux.Router {
	router := mux.NewRouter()
	feed.RegisterRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods("GET")
	}

	return router
}

// LogRoutes writes every registered route at debug level.
func LogRoutes(router *mux.Router, log logger.Logger) {
	router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, _ := route.GetMethods()
		log.Debug("route registered",
			logger.String("path", path),
			logger.String("methods", strings.Join(methods, ",")),
		)
		return nil
	})
}
