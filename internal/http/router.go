package http

import (
	"net/http"
)

// RouterConfig lists the handlers mounted by NewRouter. Nil handlers are skipped.
type RouterConfig struct {
	Venues       *VenueHandler
	Groups       *GroupHandler
	Availability *AvailabilityHandler
	Rehearsals   *RehearsalHandler
	Middleware   []func(http.Handler) http.Handler
}

// NewRouter builds the API mux. Middleware wraps the mux in the order given,
// the first entry outermost.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Venues != nil {
		mux.HandleFunc("POST /venues", cfg.Venues.Create)
		mux.HandleFunc("GET /venues", cfg.Venues.List)
		mux.HandleFunc("GET /venues/{id}", cfg.Venues.Get)
	}

	if cfg.Groups != nil {
		mux.HandleFunc("POST /groups", cfg.Groups.Create)
		mux.HandleFunc("GET /groups/{id}", cfg.Groups.Get)
		mux.HandleFunc("POST /groups/{id}/members", cfg.Groups.AddMember)
		mux.HandleFunc("PUT /groups/{id}/members/{userID}", cfg.Groups.ChangeRole)
		mux.HandleFunc("DELETE /groups/{id}/members/{userID}", cfg.Groups.RemoveMember)
		mux.HandleFunc("POST /groups/{id}/suggestions", cfg.Groups.Suggest)
	}

	if cfg.Availability != nil {
		mux.HandleFunc("PUT /members/{id}/availability", cfg.Availability.Set)
		mux.HandleFunc("GET /members/{id}/availability", cfg.Availability.Get)
	}

	if cfg.Rehearsals != nil {
		mux.HandleFunc("GET /rehearsals", cfg.Rehearsals.List)
		mux.HandleFunc("POST /rehearsals", cfg.Rehearsals.Create)
		mux.HandleFunc("GET /rehearsals/{id}", cfg.Rehearsals.Get)
		mux.HandleFunc("PUT /rehearsals/{id}", cfg.Rehearsals.Update)
		mux.HandleFunc("DELETE /rehearsals/{id}", cfg.Rehearsals.Delete)
		mux.HandleFunc("GET /rehearsals/{id}/occurrences", cfg.Rehearsals.Occurrences)
		mux.HandleFunc("GET /rehearsals/{id}/calendar.ics", cfg.Rehearsals.Calendar)
		mux.HandleFunc("PUT /rehearsals/{id}/attendance", cfg.Rehearsals.UpdateAttendance)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
