package domain

// User is the identity resolved from a verified credential.
type User struct {
	Profile
	IsVerified bool
	IsOnline   bool
}

// Profile is the minimal sender block attached to every delivered message.
type Profile struct {
	ID        string  `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	UserName  *string `json:"userName"`
	AvatarURL *string `json:"avatarUrl"`
}
