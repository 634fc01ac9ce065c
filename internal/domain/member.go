package domain

// Member is a participant as the coordination server tracks it.
// No transport or lifecycle logic here.
type Member struct {
	User *User
	Participant
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user *User, id ConnectionID) *Member {
	return &Member{
		User: user,
		Participant: Participant{
			ConnectionID: id,
			DisplayName:  user.Username,
		},
	}
}
