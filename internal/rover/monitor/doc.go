// Package monitor serves the rover's live state over HTTP and reports
// controller health over gRPC.
//
// Routes:
//
//	/api/state     current pipeline view as JSON
//	/api/map.png   render map with the rover's position
//	/debug/votes   vote-grid heatmap
//	/metrics       Prometheus metrics
package monitor
