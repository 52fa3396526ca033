package model

// Role is the kind of participant behind an identity.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleBot   Role = "bot"
)

func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleUser, RoleStaff, RoleBot:
		return true
	}
	return false
}

// Identity is a resolved participant, independent of any connection.
// The bot of a business uses the business id as its identity id.
type Identity struct {
	ID          string `json:"id"`
	Role        Role   `json:"role"`
	BusinessID  string `json:"business_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

func (i Identity) IsStaff() bool {
	return i.Role == RoleStaff
}

// BotIdentity builds the identity the bot of a business speaks with.
func BotIdentity(businessID, botName string) Identity {
	if botName == "" {
		botName = "Bot"
	}
	return Identity{
		ID:          businessID,
		Role:        RoleBot,
		BusinessID:  businessID,
		DisplayName: botName,
	}
}
