package application

import (
	"context"
	"sort"
	"sync"

	"github.com/example/rehearsal-scheduler/internal/persistence"
)

// memStore is an in-memory implementation of every persistence repository.
type memStore struct {
	mu           sync.Mutex
	venues       map[string]persistence.Venue
	groups       map[string]persistence.Group
	members      map[string][]persistence.GroupMember
	rehearsals   map[string]persistence.Rehearsal
	attendees    map[string]map[string]persistence.Attendee
	availability map[string]persistence.Availability

	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		venues:       make(map[string]persistence.Venue),
		groups:       make(map[string]persistence.Group),
		members:      make(map[string][]persistence.GroupMember),
		rehearsals:   make(map[string]persistence.Rehearsal),
		attendees:    make(map[string]map[string]persistence.Attendee),
		availability: make(map[string]persistence.Availability),
	}
}

func (m *memStore) CreateVenue(_ context.Context, venue persistence.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.venues[venue.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.venues[venue.ID] = venue
	return nil
}

func (m *memStore) GetVenue(_ context.Context, id string) (persistence.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	venue, ok := m.venues[id]
	if !ok {
		return persistence.Venue{}, persistence.ErrNotFound
	}
	return venue, nil
}

func (m *memStore) ListVenues(context.Context) ([]persistence.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Venue, 0, len(m.venues))
	for _, v := range m.venues {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) CreateGroup(_ context.Context, group persistence.Group, owner persistence.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[group.ID]; ok {
		return persistence.ErrDuplicate
	}
	owner.GroupID = group.ID
	m.groups[group.ID] = group
	m.members[group.ID] = []persistence.GroupMember{owner}
	return nil
}

func (m *memStore) GetGroup(_ context.Context, id string) (persistence.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, ok := m.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return group, nil
}

func (m *memStore) ListMembers(_ context.Context, groupID string) ([]persistence.GroupMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.GroupMember, len(m.members[groupID]))
	copy(out, m.members[groupID])
	return out, nil
}

func (m *memStore) UpsertMember(_ context.Context, member persistence.GroupMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[member.GroupID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	for i, existing := range m.members[member.GroupID] {
		if existing.UserID == member.UserID {
			m.members[member.GroupID][i].Role = member.Role
			return nil
		}
	}
	m.members[member.GroupID] = append(m.members[member.GroupID], member)
	return nil
}

func (m *memStore) DeleteMember(_ context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.members[groupID]
	for i, existing := range members {
		if existing.UserID == userID {
			m.members[groupID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (m *memStore) addMember(groupID, userID, role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[groupID] = append(m.members[groupID], persistence.GroupMember{GroupID: groupID, UserID: userID, Role: role})
}

func (m *memStore) venueBookingsLocked(venueID *string) []persistence.Rehearsal {
	if venueID == nil {
		return nil
	}
	out := make([]persistence.Rehearsal, 0)
	for _, r := range m.rehearsals {
		if r.VenueID != nil && *r.VenueID == *venueID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memStore) CreateRehearsal(_ context.Context, rehearsal persistence.Rehearsal, attendees []persistence.Attendee, guard persistence.BookingGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if guard != nil && rehearsal.VenueID != nil {
		if err := guard(m.venueBookingsLocked(rehearsal.VenueID)); err != nil {
			return err
		}
	}
	if _, ok := m.rehearsals[rehearsal.ID]; ok {
		return persistence.ErrDuplicate
	}
	m.rehearsals[rehearsal.ID] = rehearsal
	m.attendees[rehearsal.ID] = make(map[string]persistence.Attendee)
	for _, a := range attendees {
		a.RehearsalID = rehearsal.ID
		m.attendees[rehearsal.ID][a.UserID] = a
	}
	return nil
}

func (m *memStore) UpdateRehearsal(_ context.Context, rehearsal persistence.Rehearsal, guard persistence.BookingGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if guard != nil && rehearsal.VenueID != nil {
		if err := guard(m.venueBookingsLocked(rehearsal.VenueID)); err != nil {
			return err
		}
	}
	if _, ok := m.rehearsals[rehearsal.ID]; !ok {
		return persistence.ErrNotFound
	}
	m.rehearsals[rehearsal.ID] = rehearsal
	return nil
}

func (m *memStore) GetRehearsal(_ context.Context, id string) (persistence.Rehearsal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rehearsals[id]
	if !ok {
		return persistence.Rehearsal{}, persistence.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRehearsals(_ context.Context, groupID string) ([]persistence.Rehearsal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]persistence.Rehearsal, 0)
	for _, r := range m.rehearsals {
		if groupID == "" || r.GroupID == groupID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (m *memStore) ListRehearsalsForVenue(_ context.Context, venueID string) ([]persistence.Rehearsal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.venueBookingsLocked(&venueID), nil
}

func (m *memStore) DeleteRehearsal(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rehearsals[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(m.rehearsals, id)
	delete(m.attendees, id)
	return nil
}

func (m *memStore) ListAttendees(_ context.Context, rehearsalID string) ([]persistence.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persistence.Attendee, 0)
	for _, a := range m.attendees[rehearsalID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memStore) UpdateAttendee(_ context.Context, attendee persistence.Attendee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rehearsals[attendee.RehearsalID]; !ok {
		return persistence.ErrForeignKeyViolation
	}
	m.attendees[attendee.RehearsalID][attendee.UserID] = attendee
	return nil
}

func (m *memStore) ReplaceAvailability(_ context.Context, availability persistence.Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.availability[availability.UserID] = availability
	return nil
}

func (m *memStore) GetAvailability(_ context.Context, userID string) (persistence.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.availability[userID]; ok {
		return a, nil
	}
	return persistence.Availability{UserID: userID}, nil
}
