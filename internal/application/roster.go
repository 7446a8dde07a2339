package application

// Roster is a group's member list with guarded role transitions. Mutators
// report false instead of failing so callers decide how to surface a refused
// change. The owner can never be demoted or removed.
type Roster struct {
	members []GroupMember
}

// NewRoster copies members into a Roster.
func NewRoster(members []GroupMember) *Roster {
	copied := make([]GroupMember, len(members))
	copy(copied, members)
	return &Roster{members: copied}
}

// Members returns a copy of the roster.
func (r *Roster) Members() []GroupMember {
	out := make([]GroupMember, len(r.members))
	copy(out, r.members)
	return out
}

// Role returns the role of userID and whether they belong to the group.
func (r *Roster) Role(userID string) (Role, bool) {
	if i := r.indexOf(userID); i >= 0 {
		return r.members[i].Role, true
	}
	return "", false
}

// Add appends a member. It refuses existing members and a second owner.
func (r *Roster) Add(member GroupMember) bool {
	if member.UserID == "" || member.Role == RoleOwner || r.indexOf(member.UserID) >= 0 {
		return false
	}
	r.members = append(r.members, member)
	return true
}

// SetRole changes the role of an existing member. The owner's role is fixed
// and nobody else can be promoted to owner.
func (r *Roster) SetRole(userID string, role Role) bool {
	i := r.indexOf(userID)
	if i < 0 || role == RoleOwner || r.members[i].Role == RoleOwner {
		return false
	}
	r.members[i].Role = role
	return true
}

// Remove deletes a non-owner member.
func (r *Roster) Remove(userID string) bool {
	i := r.indexOf(userID)
	if i < 0 || r.members[i].Role == RoleOwner {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return true
}

func (r *Roster) indexOf(userID string) int {
	for i, member := range r.members {
		if member.UserID == userID {
			return i
		}
	}
	return -1
}
