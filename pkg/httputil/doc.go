// Package httputil holds the JSON request and response helpers and the
// transport-level middleware shared by every taskboard route.
//
//	router.Use(
//		httputil.RequestIDMiddleware,
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//	)
//
// Error bodies always have the shape {"error": ..., "code": ..., "request_id": ...}.
// Mapping domain errors to status codes lives in pkg/api.
package httputil
