package domain

type ScopeKind string

const (
	ScopeUser    ScopeKind = "user"
	ScopeChannel ScopeKind = "channel"
)

// Scope names the set of messages a retention cap applies to.
type Scope struct {
	Kind ScopeKind
	ID   string
}

func UserScope(userID string) Scope { return Scope{Kind: ScopeUser, ID: userID} }

func ChannelScope(channelID string) Scope { return Scope{Kind: ScopeChannel, ID: channelID} }

// String is also used as the serialization key of the scope.
func (s Scope) String() string { return string(s.Kind) + ":" + s.ID }
