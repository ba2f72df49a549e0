// Package http provides HTTP handlers and middleware for the timetable API.
//
// All endpoints are scoped to the carrier identified by the `X-Company-ID`
// header. The router exposes:
//   - GET /calendars, POST /calendars, GET/PUT/DELETE /calendars/{id} and
//     GET /calendars/{id}/resolved?year=YYYY: named date-rule calendars
//     exchanging the `calendarDTO` payload defined in calendar_handler.go.
//   - GET /routes, POST /routes, GET /routes/{id}, POST /routes/{id}/versions,
//     GET /routes/{id}/versions/active: routes and their versioned stop
//     sequences, defined in route_handler.go.
//   - GET /schedules, POST /schedules, GET/PUT/DELETE /schedules/{id}:
//     schedule management exchanging the `scheduleDTO` payload defined in
//     schedule_handler.go. POST /schedules/{id}/materialize persists one
//     occurrence as a trip.
//   - GET /trips?from=&to=&route_id=: the merged virtual-plus-materialized
//     timetable. POST /trips creates a manual trip. GET /trips/{id} accepts
//     virtual and materialized identifiers. POST /trips/{id}/start, /cancel,
//     /complete and /assign drive the trip lifecycle, and
//     PUT /trips/{id}/stops/{stopID}/actual records observed stop times.
//   - GET /metrics: Prometheus metrics, when enabled.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
