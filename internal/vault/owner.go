package vault

import "strings"

// Owner is the signed-in account a request acts for.
// Email doubles as the identifier notes are encrypted under.
type Owner struct {
	ID    OwnerID
	Email string
}

func NewOwner(id, email string) (Owner, error) {
	ownerID, err := NewOwnerID(id)
	if err != nil {
		return Owner{}, err
	}
	return Owner{ID: ownerID, Email: strings.ToLower(strings.TrimSpace(email))}, nil
}
