package service

// RootActorID is the id of the actor that logs in with the root token
// printed at startup.
const RootActorID = "root"

type Actor struct {
	// id of the actor, e.g. an email address or "root"
	ID string `json:"id"`

	// name is a display name, if known
	Name string `json:"name,omitempty"`
}

func (a *Actor) IsRoot() bool {
	return a != nil && a.ID == RootActorID
}

func (a *Actor) String() string {
	if a == nil {
		return "anonymous"
	}

	return a.ID
}
