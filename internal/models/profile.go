package models

// UserMessagingSettings is owned by the profile collaborator and read-only here.
type UserMessagingSettings struct {
	CanReceiveMessages  bool `json:"canReceiveMessages"`
	CanReceiveAnonymous bool `json:"canReceiveAnonymous"`
}

type Profile struct {
	ID          string                `json:"id"`
	OwnerUID    string                `json:"ownerUid"`
	Username    string                `json:"username"`
	Slug        string                `json:"slug,omitempty"`
	DisplayName string                `json:"displayName,omitempty"`
	Settings    UserMessagingSettings `json:"settings"`
}
