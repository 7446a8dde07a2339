// Package http provides HTTP handlers and middleware for the rehearsal API.
//
// Every route requires the X-Member-ID header; RequireMember turns it into the
// acting principal. The router exposes the following endpoints:
//   - POST /venues, GET /venues, GET /venues/{id}: the venue catalog exchanging
//     the `venueDTO` payload defined in venue_handler.go.
//   - POST /groups, GET /groups/{id}: band management. The creator becomes the
//     owner of the group.
//   - POST /groups/{id}/members, PUT /groups/{id}/members/{userID},
//     DELETE /groups/{id}/members/{userID}: roster changes restricted to owners
//     and admins.
//   - POST /groups/{id}/suggestions: proposes rehearsal times every member can
//     attend. Body: {"window_start","window_end","preferred_minutes",
//     "min_minutes","limit","venue_id"}.
//   - PUT /members/{id}/availability, GET /members/{id}/availability: a member's
//     weekly and one-time availability windows with "HH:MM" times.
//   - GET /rehearsals?group_id=, POST /rehearsals, GET|PUT|DELETE /rehearsals/{id}:
//     rehearsal management exchanging the `rehearsalDTO` payload defined in
//     rehearsal_handler.go. Recurring rehearsals also carry their RRULE.
//   - GET /rehearsals/{id}/occurrences?from=&to=: expanded occurrences that
//     overlap the RFC 3339 window.
//   - GET /rehearsals/{id}/calendar.ics?from=&to=: the same occurrences as an
//     iCalendar feed.
//   - PUT /rehearsals/{id}/attendance: records the caller's response.
//
// Malformed bodies and tag validation failures answer 400, rule violations
// reported by services answer 422 with a field map.
package http
