package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rehearsal-scheduler/internal/application"
	"github.com/example/rehearsal-scheduler/internal/recurrence"
	"github.com/example/rehearsal-scheduler/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body), recorder.Body.String())
	return body
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body), recorder.Body.String())
	return body
}

type apiHarness struct {
	t       *testing.T
	handler http.Handler
}

// newAPIHarness wires the real services over a migrated SQLite database.
// Band g1 is alice (owner) and bob, band g2 is erin, and venue v1 exists.
func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()

	storage := testfixtures.NewSQLiteStorage(t)
	testfixtures.SeedBand(t, storage, testfixtures.NewBand("g1", "alice", "bob"))
	testfixtures.SeedBand(t, storage, testfixtures.NewBand("g2", "erin"))
	require.NoError(t, storage.CreateVenue(context.Background(), testfixtures.NewVenue("v1")))

	logger := discardLogger()
	clock := testfixtures.NewClock(time.Time{})
	engine := recurrence.NewEngine(time.UTC)

	venues := application.NewVenueServiceWithLogger(storage, testfixtures.NewIDGenerator("venue").Next, clock.Now, logger)
	groups := application.NewGroupServiceWithLogger(storage, testfixtures.NewIDGenerator("group").Next, clock.Now, logger)
	availability := application.NewAvailabilityService(storage, logger)
	suggestions := application.NewSuggestionService(storage, storage, storage, engine, logger)
	rehearsals := application.NewRehearsalServiceWithLogger(storage, storage, storage, engine,
		testfixtures.NewIDGenerator("rehearsal").Next, clock.Now, logger)

	return &apiHarness{t: t, handler: NewRouter(RouterConfig{
		Venues:       NewVenueHandler(venues, logger),
		Groups:       NewGroupHandler(groups, suggestions, logger),
		Availability: NewAvailabilityHandler(availability, logger),
		Rehearsals:   NewRehearsalHandler(rehearsals, time.UTC, clock.Now, logger),
		Middleware:   []func(http.Handler) http.Handler{RequestLogger(logger), RequireMember(logger)},
	})}
}

func (h *apiHarness) do(method, path, member string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if member != "" {
		req.Header.Set(MemberIDHeader, member)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, req)
	return recorder
}

func TestRouterRequiresMember(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	recorder := api.do(http.MethodGet, "/venues", "", nil)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = api.do(http.MethodPatch, "/venues", "alice", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestVenueHandlers(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	recorder := api.do(http.MethodPost, "/venues", "alice", map[string]string{"name": " Annex ", "address": "2 Side St"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	created := decodeBody[venueResponse](t, recorder)
	assert.Equal(t, "venue-1", created.Venue.ID)
	assert.Equal(t, "Annex", created.Venue.Name)

	recorder = api.do(http.MethodGet, "/venues", "bob", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	listed := decodeBody[listVenuesResponse](t, recorder)
	require.Len(t, listed.Venues, 2)
	assert.Equal(t, "Annex", listed.Venues[0].Name)

	recorder = api.do(http.MethodGet, "/venues/v1", "bob", nil)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = api.do(http.MethodGet, "/venues/missing", "bob", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = api.do(http.MethodPost, "/venues", "alice", map[string]string{"address": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, map[string]string{"name": "is required"}, decodeError(t, recorder).Errors)
}

func TestGroupHandlers(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	recorder := api.do(http.MethodPost, "/groups", "zoe", map[string]string{"name": "The Quartet"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	group := decodeBody[groupResponse](t, recorder).Group
	assert.Equal(t, "group-1", group.ID)
	require.Len(t, group.Members, 1)
	assert.Equal(t, memberDTO{UserID: "zoe", Role: "owner", JoinedAt: group.Members[0].JoinedAt}, group.Members[0])

	path := "/groups/" + group.ID
	recorder = api.do(http.MethodPost, path+"/members", "zoe", map[string]string{"user_id": "yuki"})
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	assert.Len(t, decodeBody[groupResponse](t, recorder).Group.Members, 2)

	t.Run("duplicate member conflicts", func(t *testing.T) {
		recorder := api.do(http.MethodPost, path+"/members", "zoe", map[string]string{"user_id": "yuki"})
		assert.Equal(t, http.StatusConflict, recorder.Code)
	})

	t.Run("members cannot manage the roster", func(t *testing.T) {
		recorder := api.do(http.MethodPost, path+"/members", "yuki", map[string]string{"user_id": "xavi"})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("ownership cannot be granted", func(t *testing.T) {
		recorder := api.do(http.MethodPut, path+"/members/yuki", "zoe", map[string]string{"role": "owner"})
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		assert.Contains(t, decodeError(t, recorder).Errors, "role")
	})

	t.Run("unknown roles fail request validation", func(t *testing.T) {
		recorder := api.do(http.MethodPut, path+"/members/yuki", "zoe", map[string]string{"role": "roadie"})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	recorder = api.do(http.MethodPut, path+"/members/yuki", "zoe", map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = api.do(http.MethodDelete, path+"/members/yuki", "zoe", nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Len(t, decodeBody[groupResponse](t, recorder).Group.Members, 1)

	recorder = api.do(http.MethodGet, path, "erin", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = api.do(http.MethodGet, "/groups/missing", "zoe", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestAvailabilityHandlers(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	body := map[string]any{
		"weekly":   []map[string]any{{"day": 1, "start": "18:00", "end": "22:00"}},
		"one_time": []map[string]any{{"date": "2024-06-05", "start": "10:00", "end": "11:30"}},
	}

	recorder := api.do(http.MethodPut, "/members/alice/availability", "bob", body)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = api.do(http.MethodPut, "/members/alice/availability", "alice", body)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	recorder = api.do(http.MethodGet, "/members/alice/availability", "bob", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	got := decodeBody[availabilityDTO](t, recorder)
	assert.Equal(t, "alice", got.MemberID)
	require.Len(t, got.Weekly, 1)
	assert.Equal(t, 1, *got.Weekly[0].Day)
	assert.Equal(t, "18:00", got.Weekly[0].Start)
	assert.Equal(t, "22:00", got.Weekly[0].End)
	assert.Equal(t, []oneTimeSlotDTO{{Date: "2024-06-05", Start: "10:00", End: "11:30"}}, got.OneTime)

	recorder = api.do(http.MethodPut, "/members/alice/availability", "alice", map[string]any{
		"weekly": []map[string]any{{"day": 2, "start": "19:00", "end": "19:00"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	recorder = api.do(http.MethodGet, "/members/nobody/availability", "bob", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Empty(t, decodeBody[availabilityDTO](t, recorder).Weekly)
}

func TestSuggestHandler(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	for member, window := range map[string][2]string{"alice": {"18:00", "22:00"}, "bob": {"19:00", "23:00"}} {
		recorder := api.do(http.MethodPut, "/members/"+member+"/availability", member, map[string]any{
			"weekly": []map[string]any{{"day": 1, "start": window[0], "end": window[1]}},
		})
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	}

	request := map[string]any{
		"window_start":      "2024-06-03T00:00:00Z",
		"window_end":        "2024-06-04T00:00:00Z",
		"preferred_minutes": 120,
	}
	recorder := api.do(http.MethodPost, "/groups/g1/suggestions", "bob", request)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, []suggestionDTO{{
		Start:       "2024-06-03T19:00:00Z",
		End:         "2024-06-03T21:00:00Z",
		WindowStart: "2024-06-03T19:00:00Z",
		WindowEnd:   "2024-06-03T22:00:00Z",
	}}, decodeBody[suggestionsResponse](t, recorder).Suggestions)

	recorder = api.do(http.MethodPost, "/groups/g1/suggestions", "erin", request)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	request["preferred_minutes"] = 0
	recorder = api.do(http.MethodPost, "/groups/g1/suggestions", "bob", request)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Equal(t, "is required", decodeError(t, recorder).Errors["preferred_minutes"])
}

func TestRehearsalHandlers(t *testing.T) {
	t.Parallel()
	api := newAPIHarness(t)

	weekly := map[string]any{
		"group_id": "g1",
		"venue_id": "v1",
		"title":    "Set run-through",
		"start":    "2024-06-03T18:00:00Z",
		"end":      "2024-06-03T20:00:00Z",
		"recurrence": map[string]any{
			"frequency":   "weekly",
			"day_of_week": 1,
			"end_date":    "2024-06-24",
		},
	}

	recorder := api.do(http.MethodPost, "/rehearsals", "alice", weekly)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	created := decodeBody[rehearsalResponse](t, recorder).Rehearsal
	assert.Equal(t, "rehearsal-1", created.ID)
	assert.Equal(t, "alice", created.CreatedBy)
	assert.Len(t, created.Attendees, 2)
	require.NotNil(t, created.Recurrence)
	assert.Equal(t, "weekly", created.Recurrence.Frequency)
	assert.Contains(t, created.Recurrence.RRule, "FREQ=WEEKLY")
	assert.Contains(t, created.Recurrence.RRule, "BYDAY=MO")

	path := "/rehearsals/" + created.ID

	t.Run("venue double booking is refused", func(t *testing.T) {
		recorder := api.do(http.MethodPost, "/rehearsals", "erin", map[string]any{
			"group_id": "g2",
			"venue_id": "v1",
			"title":    "Clash",
			"start":    "2024-06-17T19:00:00Z",
			"end":      "2024-06-17T21:00:00Z",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
		assert.Contains(t, decodeError(t, recorder).Errors["venue_id"], "2024-06-17T19:00:00Z")
	})

	t.Run("back to back bookings are allowed", func(t *testing.T) {
		recorder := api.do(http.MethodPost, "/rehearsals", "erin", map[string]any{
			"group_id": "g2",
			"venue_id": "v1",
			"title":    "Late slot",
			"start":    "2024-06-17T20:00:00Z",
			"end":      "2024-06-17T22:00:00Z",
		})
		assert.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
	})

	t.Run("rejects invalid recurrence in the body", func(t *testing.T) {
		recorder := api.do(http.MethodPost, "/rehearsals", "alice", map[string]any{
			"group_id":   "g1",
			"title":      "Bad",
			"start":      "2024-06-03T18:00:00Z",
			"end":        "2024-06-03T20:00:00Z",
			"recurrence": map[string]any{"frequency": "daily"},
		})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Contains(t, decodeError(t, recorder).Errors, "recurrence.frequency")
	})

	t.Run("lists occurrences in a window", func(t *testing.T) {
		recorder := api.do(http.MethodGet, path+"/occurrences?from=2024-06-01T00:00:00Z&to=2024-07-01T00:00:00Z", "bob", nil)
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
		occurrences := decodeBody[occurrencesResponse](t, recorder).Occurrences
		require.Len(t, occurrences, 4)
		assert.Equal(t, "2024-06-03T18:00:00Z", occurrences[0].Start)
		assert.Equal(t, "2024-06-24T20:00:00Z", occurrences[3].End)

		recorder = api.do(http.MethodGet, path+"/occurrences?from=yesterday", "bob", nil)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		assert.Equal(t, errInvalidTimeRange.Error(), decodeError(t, recorder).Message)

		recorder = api.do(http.MethodGet, path+"/occurrences?from=2024-07-01T00:00:00Z&to=2024-06-01T00:00:00Z", "bob", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	})

	t.Run("exports occurrences as iCalendar", func(t *testing.T) {
		recorder := api.do(http.MethodGet, path+"/calendar.ics?from=2024-06-01T00:00:00Z&to=2024-06-12T00:00:00Z", "bob", nil)
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
		assert.Equal(t, "text/calendar; charset=utf-8", recorder.Header().Get("Content-Type"))
		body := recorder.Body.String()
		assert.Contains(t, body, "BEGIN:VCALENDAR")
		assert.Contains(t, body, "UID:rehearsal-1-0@rehearsal-scheduler")
		assert.Contains(t, body, "UID:rehearsal-1-1@rehearsal-scheduler")
		assert.Equal(t, 2, strings.Count(body, "BEGIN:VEVENT"))
	})

	t.Run("members record attendance", func(t *testing.T) {
		recorder := api.do(http.MethodPut, path+"/attendance", "bob", map[string]string{"status": "confirmed"})
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
		assert.Equal(t, "confirmed", decodeBody[attendeeResponse](t, recorder).Attendee.Status)

		recorder = api.do(http.MethodPut, path+"/attendance", "bob", map[string]string{"status": "maybe"})
		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		recorder = api.do(http.MethodPut, path+"/attendance", "erin", map[string]string{"status": "confirmed"})
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("outsiders cannot read the rehearsal", func(t *testing.T) {
		recorder := api.do(http.MethodGet, path, "erin", nil)
		assert.Equal(t, http.StatusForbidden, recorder.Code)
	})

	t.Run("updates move the rehearsal", func(t *testing.T) {
		moved := map[string]any{
			"group_id": "g1",
			"title":    "Moved",
			"start":    "2024-06-04T18:00:00Z",
			"end":      "2024-06-04T20:00:00Z",
		}
		recorder := api.do(http.MethodPut, path, "bob", moved)
		assert.Equal(t, http.StatusForbidden, recorder.Code)

		recorder = api.do(http.MethodPut, path, "alice", moved)
		require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
		updated := decodeBody[rehearsalResponse](t, recorder).Rehearsal
		assert.Equal(t, "Moved", updated.Title)
		assert.Nil(t, updated.Recurrence)
		assert.Nil(t, updated.VenueID)
	})

	recorder = api.do(http.MethodGet, "/rehearsals?group_id=g1", "bob", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, decodeBody[listRehearsalsResponse](t, recorder).Rehearsals, 1)

	recorder = api.do(http.MethodDelete, path, "bob", nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = api.do(http.MethodDelete, path, "alice", nil)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Empty(t, recorder.Body.String())

	recorder = api.do(http.MethodGet, path, "alice", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}
