package models

// Account carries the credentials a backend is constructed with.
type Account struct {
	Name      string
	APIKey    string
	APISecret string
}

// HasKeys reports whether signed endpoints can be used.
func (a Account) HasKeys() bool { return a.APIKey != "" && a.APISecret != "" }
