package directory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerson_ID(t *testing.T) {
	person := Person{
		Identifiers: []string{
			"mobilize:77",
			"action_network:abc-123",
		},
	}

	assert.Equal(t, "abc-123", person.ID("action_network"))
	assert.Equal(t, "77", person.ID("mobilize"))
	assert.Equal(t, "", person.ID("unknown"))
}

func TestPerson_Overrides(t *testing.T) {
	person := Person{
		CustomFields: map[string]string{
			"Phone":               "5555555555",
			"override_given_name": "Charlie",
			"override_Phone":      "6176666666",
		},
	}

	overrides := person.Overrides()
	assert.Equal(t, map[string]string{
		"given_name": "Charlie",
		"Phone":      "6176666666",
	}, overrides)
}

func TestPerson_Overrides_NonePresent(t *testing.T) {
	person := Person{CustomFields: map[string]string{"Phone": "5555555555"}}
	assert.Empty(t, person.Overrides())
}

func TestPerson_PrimaryEmail(t *testing.T) {
	person := Person{
		EmailAddresses: []EmailAddress{
			{Address: "old@example.org"},
			{Address: "kmarx@example.org", Primary: true},
		},
	}
	assert.Equal(t, "kmarx@example.org", person.PrimaryEmail())

	assert.Equal(t, "", Person{}.PrimaryEmail())
}
