package types

// SiteIDNone is the site used when the server runs in single-site mode.
const SiteIDNone = "none"

// Site represents a metered household or building.
type Site struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Permissions []SitePermissions `json:"permissions"`
}

// SitePermissions represents the permissions for a user on a site.
type SitePermissions struct {
	UserID string `json:"userID"`
	Email  string `json:"email,omitempty"`
}

// Allows returns true if the given user subject or email has access.
func (s Site) Allows(userID, email string) bool {
	for _, p := range s.Permissions {
		if userID != "" && p.UserID == userID {
			return true
		}
		if email != "" && p.Email == email {
			return true
		}
	}
	return false
}
