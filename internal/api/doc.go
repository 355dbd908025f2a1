// Package api implements the HTTP REST API and WebSocket server for the bridge.
//
// This package provides:
//   - REST endpoints to list accessories and read, write and refresh properties
//   - request validation with JSON Schema compiled from each property's constraints
//   - a WebSocket hub broadcasting property changes
//   - optional JWT authentication with ticket-based WebSocket auth
//   - middleware (request ID, logging, recovery, CORS, body size limit)
//
// # Authentication
//
// When security.jwt.secret is empty the API is open. Otherwise every route
// except /health requires an HS256 bearer token; WebSocket clients first
// obtain a single-use ticket from POST /api/v1/auth/ws-ticket and pass it as
// the ticket query parameter.
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/metrics
//	GET    /api/v1/poller
//	POST   /api/v1/discover
//	GET    /api/v1/audit[?uuid=&property=&limit=&offset=]
//	GET    /api/v1/accessories
//	GET    /api/v1/accessories/{uuid}
//	DELETE /api/v1/accessories/{uuid}
//	POST   /api/v1/accessories/{uuid}/refresh
//	GET    /api/v1/accessories/{uuid}/properties/{name}[?cached=false]
//	PUT    /api/v1/accessories/{uuid}/properties/{name}
//	POST   /api/v1/auth/ws-ticket
//	GET    /api/v1/ws
package api
