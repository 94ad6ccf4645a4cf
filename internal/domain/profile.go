package domain

// AccountID identifies a library/credential scope within a profile.
type AccountID string

// BookID identifies a catalog item. It matches the opaque OPDS identifier
// carried by bookmark records.
type BookID string

// Credentials are the annotation-service credentials for one account. The
// engine treats authentication as a precondition: operations that hit the
// remote assume these are already valid.
type Credentials struct {
	Username string
	Password string
}

// Account is one library scope inside a profile.
type Account struct {
	ID   AccountID
	Name string
	// AnnotationsURI is the account's annotation container endpoint. Empty
	// means the account has no remote annotation service and syncs locally only.
	AnnotationsURI string
	Credentials    Credentials
	LoggedIn       bool
}

// Profile is the currently selected reader profile and its accounts.
type Profile struct {
	ID       string
	Name     string
	Accounts map[AccountID]Account
}

// ProfileEventType enumerates profile lifecycle events the engine reacts to.
type ProfileEventType string

// AccountEventType enumerates account lifecycle events the engine reacts to.
type AccountEventType string

const (
	// ProfileSelected fires when a profile becomes current.
	ProfileSelected ProfileEventType = "profile.selected"

	// AccountLoggedIn fires when an account's credentials become valid.
	AccountLoggedIn AccountEventType = "account.logged_in"
	// AccountLoggedOut fires when an account's credentials are dropped.
	AccountLoggedOut AccountEventType = "account.logged_out"
	// AccountDeleted fires when an account is removed from the profile.
	AccountDeleted AccountEventType = "account.deleted"
)

// ProfileEvent is one profile lifecycle notification.
type ProfileEvent struct {
	Type      ProfileEventType
	ProfileID string
}

// AccountEvent is one account lifecycle notification.
type AccountEvent struct {
	Type      AccountEventType
	AccountID AccountID
}

// ProfileReader is the engine's read interface onto the application's
// profile/account state. Subscriptions return a cancel func that must be
// called when the subscriber shuts down.
type ProfileReader interface {
	// CurrentProfile returns the selected profile, or ok=false when none is
	// selected yet.
	CurrentProfile() (Profile, bool)
	ProfileEvents() (<-chan ProfileEvent, func())
	AccountEvents() (<-chan AccountEvent, func())
}
