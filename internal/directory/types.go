// Package directory is the client for the supporter-directory API,
// an OSDI-style CRM storing one person record per supporter.
package directory

import "strings"

// OverridePrefix marks directory custom fields holding manual
// corrections that must survive automated re-sync.
const OverridePrefix = "override_"

// EmailAddress is one email attached to a directory person.
type EmailAddress struct {
	Address string `json:"address"`
	Primary bool   `json:"primary,omitempty"`
	Status  string `json:"status,omitempty"`
}

// PostalAddress is one postal address attached to a directory person.
type PostalAddress struct {
	AddressLines []string `json:"address_lines,omitempty"`
	Locality     string   `json:"locality,omitempty"`
	Region       string   `json:"region,omitempty"`
	Country      string   `json:"country,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Primary      bool     `json:"primary,omitempty"`
}

// Person is the directory's view of a supporter.
type Person struct {
	GivenName       string            `json:"given_name"`
	FamilyName      string            `json:"family_name"`
	Identifiers     []string          `json:"identifiers"`
	EmailAddresses  []EmailAddress    `json:"email_addresses"`
	PostalAddresses []PostalAddress   `json:"postal_addresses"`
	CustomFields    map[string]string `json:"custom_fields"`
	CreatedDate     string            `json:"created_date,omitempty"`
	ModifiedDate    string            `json:"modified_date,omitempty"`
}

// ID extracts the directory system's own person ID from the
// identifier set. Identifiers have the form "<namespace>:<id>"; at
// most one carries the directory's namespace.
func (p Person) ID(namespace string) string {
	prefix := namespace + ":"
	for _, ident := range p.Identifiers {
		if strings.HasPrefix(ident, prefix) {
			return ident[len(prefix):]
		}
	}
	return ""
}

// Overrides extracts the custom fields whose key carries the override
// prefix, with the prefix stripped. These feed back into the next
// sync so manual directory edits are preserved.
func (p Person) Overrides() map[string]string {
	overrides := map[string]string{}
	for field, value := range p.CustomFields {
		if strings.HasPrefix(field, OverridePrefix) {
			overrides[field[len(OverridePrefix):]] = value
		}
	}
	return overrides
}

// PrimaryEmail returns the address flagged primary, empty when none is.
func (p Person) PrimaryEmail() string {
	for _, e := range p.EmailAddresses {
		if e.Primary {
			return e.Address
		}
	}
	return ""
}
