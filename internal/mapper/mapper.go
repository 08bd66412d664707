// Package mapper converts raw membership-export rows into the
// canonical person representation sent to the supporter directory.
package mapper

import (
	"strings"

	"github.com/chapterhq/roster-sync/internal/roster"
)

// CanonicalPerson is the normalized shape written to the directory.
type CanonicalPerson struct {
	Email        string            `json:"email"`
	GivenName    string            `json:"given_name"`
	FamilyName   string            `json:"family_name"`
	Address      []string          `json:"address"`
	City         string            `json:"city"`
	State        string            `json:"state"`
	Country      string            `json:"country"`
	PostalCode   string            `json:"postal_code"`
	CustomFields map[string]string `json:"custom_fields"`

	// DirectoryID is set only when updating an existing directory
	// record.
	DirectoryID string `json:"-"`
}

// phoneColumns is the fallback order for phone sources across export
// schema generations.
var phoneColumns = []string{"Best_Phone", "Mobile_Phone", "Home_Phone", "Work_Phone"}

// customFieldColumns maps directory custom-field names to their export
// columns. Columns absent from a row are dropped, not sent empty.
// Only boolean columns get True/False coercion: a middle initial "T"
// or a mail preference of "No" must pass through verbatim.
var customFieldColumns = []struct {
	target  string
	column  string
	boolean bool
}{
	{"Address Line 2", "Address_Line_2", false},
	{"AK_ID", "AK_ID", false},
	{"BDSA Xdate", roster.ColumnExpiry, false},
	{"Do Not Call", "Do_Not_Call", true},
	{"Join Date", "Join_Date", false},
	{"Mail Preference", "Mail_preference", false},
	{"Membership Type", "membership_type", false},
	{"Middle Name", "middle_name", false},
	{"Monthly Status", roster.ColumnDuesStatus, false},
	{"Student", "student_yes_no", true},
	{"Union Member", "union_member", true},
}

// FieldMapper maps one export row to a CanonicalPerson. The mapping is
// a pure function of its fields: the same row, directory ID, overrides,
// and membership flag always produce identical output.
type FieldMapper struct {
	Record      roster.RawRecord
	DirectoryID string
	Overrides   map[string]string
	// IsMember is the directory's string encoding of the membership
	// flag ("True"/"False").
	IsMember string
}

func NewFieldMapper(rec roster.RawRecord) *FieldMapper {
	return &FieldMapper{Record: rec, IsMember: "True"}
}

// Person builds the canonical representation, applying overrides last
// so manual directory edits survive re-sync.
//
// An override key matching both a core field and a custom field
// replaces both; that collision is undefined behavior and no export
// column currently produces it.
func (m *FieldMapper) Person() CanonicalPerson {
	var address []string
	if line1 := m.Record.Get("Address_Line_1", ""); line1 != "" {
		address = append(address, line1)
	}

	person := CanonicalPerson{
		Email:        m.Record.Email(),
		GivenName:    m.Record.Get("first_name", ""),
		FamilyName:   m.Record.Get("last_name", ""),
		Address:      address,
		City:         m.Record.Get("City", ""),
		State:        m.Record.Get("State", ""),
		Country:      m.Record.Get("Country", ""),
		PostalCode:   m.PostalCode(),
		CustomFields: m.CustomFields(),
		DirectoryID:  m.DirectoryID,
	}

	for field, value := range m.Overrides {
		switch field {
		case "email":
			person.Email = value
		case "given_name":
			person.GivenName = value
		case "family_name":
			person.FamilyName = value
		case "address":
			// Overrides carry one value; a directory address override
			// replaces the whole street-line list.
			person.Address = []string{value}
		case "city":
			person.City = value
		case "state":
			person.State = value
		case "country":
			person.Country = value
		case "postal_code":
			person.PostalCode = value
		}

		if _, ok := person.CustomFields[field]; ok {
			person.CustomFields[field] = value
		}
	}

	return person
}

// Phone picks the first populated phone column, strips dashes and
// spaces, and keeps only the first of a comma-separated list.
func (m *FieldMapper) Phone() string {
	var phone string
	for _, col := range phoneColumns {
		if phone = m.Record.Get(col, ""); phone != "" {
			break
		}
	}
	if phone == "" {
		return ""
	}

	phone = strings.ReplaceAll(phone, "-", "")
	phone = strings.ReplaceAll(phone, " ", "")
	if i := strings.Index(phone, ","); i >= 0 {
		phone = phone[:i]
	}
	return phone
}

// PostalCode zero-pads purely numeric codes shorter than five digits
// (the US ZIP convention); anything else passes through untouched.
func (m *FieldMapper) PostalCode() string {
	code := m.Record.Get("Zip", "")
	if code == "" || len(code) >= 5 || !isNumeric(code) {
		return code
	}
	return strings.Repeat("0", 5-len(code)) + code
}

// CustomFields builds the directory custom-field map from the fixed
// column table plus the derived phone and membership flag.
func (m *FieldMapper) CustomFields() map[string]string {
	fields := make(map[string]string, len(customFieldColumns)+2)

	for _, cf := range customFieldColumns {
		v := m.Record.Get(cf.column, "")
		if v == "" {
			continue
		}
		if cf.boolean {
			v = coerceBool(v)
		}
		fields[cf.target] = v
	}

	if phone := m.Phone(); phone != "" {
		fields["Phone"] = phone
	}
	fields["is_member"] = m.IsMember

	return fields
}

// coerceBool normalizes boolean-ish export values to the directory's
// "True"/"False" literals; unrecognized values pass through.
func coerceBool(v string) string {
	switch strings.ToLower(v) {
	case "true", "t", "yes":
		return "True"
	case "false", "f", "no":
		return "False"
	}
	return v
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
