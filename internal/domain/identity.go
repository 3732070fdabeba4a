package domain

// GuestKey is the storage key used when nobody is signed in.
const GuestKey = "cart_guest"

// KeyFor returns the snapshot storage key for the given identity ID.
// An empty ID means guest.
func KeyFor(identityID string) string {
	if identityID == "" {
		return GuestKey
	}
	return "cart_" + identityID
}
