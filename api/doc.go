// Package api documents the MeshFlow retrieval HTTP API.
//
// The handlers live in api/handlers; this package only carries the
// endpoint reference below.
//
// # API Overview
//
// MeshFlow serves what an ingestion run stored, read-only:
//
//	GET /api/glb/{item_id}        latest GLB for the item (model/gltf-binary, attachment)
//	GET /api/metadata/{item_id}   the item's metadata row
//	GET /api/metadata             rows, optional ?category=<name>&limit=<1..1000> (default 100)
//	GET /api/items                item ids that have a GLB in the blob store, sorted
//	GET /health                   liveness
//	GET /ready                    pings the metadata and blob stores
//	GET /version                  build information
//	GET /metrics                  Prometheus exposition, when server.metrics_port is 0
//
// # Response Envelope
//
// JSON endpoints answer with
//
//	{"success": true, "data": ..., "timestamp": "...", "request_id": "req-..."}
//
// and errors with
//
//	{"success": false, "error": {"code": "NOT_FOUND", "message": "...", "item_id": "dressA"}}
//
// where code is a types.ErrorKind. NOT_FOUND maps to 404, INVALID_REQUEST
// to 400, RATE_LIMITED to 429 and UNAVAILABLE to 503.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
