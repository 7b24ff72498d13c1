package model

// Credentials is the proof a login attempt carries. It is a closed set:
// ManualCredentials for email/password accounts and OAuthCredentials for
// profiles handed over by a third-party identity provider.
type Credentials interface {
	Provider() Provider
	credentials()
}

// ManualCredentials carries the plaintext password of an email/password login.
type ManualCredentials struct {
	Password string
}

func (ManualCredentials) Provider() Provider { return ProviderManual }
func (ManualCredentials) credentials()       {}

// OAuthCredentials carries the provider an identity came from and, for
// GitHub, the access token the front end obtained during sign-in.
type OAuthCredentials struct {
	Source      Provider
	AccessToken string
}

func (c OAuthCredentials) Provider() Provider { return c.Source }
func (OAuthCredentials) credentials()         {}

// Identity is the set of claimed attributes a login resolves to a User.
type Identity struct {
	Name        string
	Email       string
	PhoneNumber string
	Avatar      string
	Credentials Credentials
}
