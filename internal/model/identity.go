package model

// Identity is the authenticated user the notification channel belongs to.
type Identity struct {
	// Credential is the bearer token used for the channel transport and
	// the channel authorization endpoint.
	Credential string

	// SubjectID is the stable user identifier that scopes the private channel.
	SubjectID string

	// Name is the display name, when known.
	Name string
}

// Usable reports whether the identity carries everything needed to open
// a user channel.
func (i Identity) Usable() bool {
	return i.Credential != "" && i.SubjectID != ""
}

// UserChannel returns the private channel name scoped to the identity.
func (i Identity) UserChannel() string {
	return "private-users." + i.SubjectID
}
