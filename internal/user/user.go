// Package user defines the account model used for authentication
// and as the owner of tasks.
package user

// User represents a registered account.
type User struct {
	// ID is the store-assigned identifier of the user, meaning a UUID.
	ID string `json:"id"`

	// Username is the unique login name (email-shaped).
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the password. The raw password
	// is never stored.
	PasswordHash string `json:"password_hash"`
}
