package domain

type ChannelType string

const (
	ChannelPublic  ChannelType = "PUBLIC"
	ChannelPrivate ChannelType = "PRIVATE"
	ChannelDirect  ChannelType = "DIRECT"
)

// ParseChannelType accepts the legacy "DM" spelling used by older rows.
func ParseChannelType(s string) ChannelType {
	switch s {
	case "DM", string(ChannelDirect):
		return ChannelDirect
	case string(ChannelPrivate):
		return ChannelPrivate
	default:
		return ChannelPublic
	}
}

type Channel struct {
	ID       string
	Name     string
	Type     ChannelType
	Hashtags []string
}

func (c Channel) IsDirect() bool { return c.Type == ChannelDirect }

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type Membership struct {
	UserID    string
	ChannelID string
	Role      Role
}
