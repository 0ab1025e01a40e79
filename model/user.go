package model

// UserProfile is a plain value object for an externally managed
// identity. Behavior that the web layer used to graft onto the identity
// model lives here as ordinary methods instead.
type UserProfile struct {
	ID        int64
	FirstName string
	Email     string
}

func (u UserProfile) NameOrEmail() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Email
}

func (u UserProfile) DisplayNameAndEmail() string {
	return u.NameOrEmail() + " <" + u.Email + ">"
}
