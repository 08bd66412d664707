package roster

import (
	"testing"
	"time"
)

var classifyNow = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

func TestIsMember(t *testing.T) {
	c := NewClassifier(60)

	tests := []struct {
		name string
		rec  RawRecord
		want bool
	}{
		{
			"no standing columns defaults to member",
			RawRecord{ColumnEmail: "a@example.org"},
			true,
		},
		{
			"future expiry",
			RawRecord{ColumnExpiry: "2021-12-31"},
			true,
		},
		{
			"expiry inside grace window",
			RawRecord{ColumnExpiry: classifyNow.AddDate(0, 0, -59).Format("2006-01-02")},
			true,
		},
		{
			"expiry past grace window",
			RawRecord{ColumnExpiry: classifyNow.AddDate(0, 0, -61).Format("2006-01-02")},
			false,
		},
		{
			"explicit expired status overrides future expiry",
			RawRecord{ColumnMembStatus: "expired", ColumnExpiry: "2021-12-31"},
			false,
		},
		{
			"explicit lapsed status",
			RawRecord{ColumnMembStatus: "Lapsed"},
			false,
		},
		{
			"member status falls through to remaining rules",
			RawRecord{ColumnMembStatus: "member", ColumnExpiry: "2021-12-31"},
			true,
		},
		{
			"dues letter other than member code",
			RawRecord{ColumnDuesStatus: "L"},
			false,
		},
		{
			"dues member code",
			RawRecord{ColumnDuesStatus: "M"},
			true,
		},
		{
			"slash date layout",
			RawRecord{ColumnExpiry: "1/31/2021"},
			false,
		},
		{
			"unparseable expiry ignored",
			RawRecord{ColumnExpiry: "n/a"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.IsMember(tt.rec, classifyNow); got != tt.want {
				t.Errorf("IsMember(%v) = %v, want %v", tt.rec, got, tt.want)
			}
		})
	}
}

func TestNewClassifier_DefaultGrace(t *testing.T) {
	c := NewClassifier(0)
	if c.GraceDays != DefaultGraceDays {
		t.Errorf("GraceDays = %d, want %d", c.GraceDays, DefaultGraceDays)
	}
}

func TestIsMember_GraceWindowConfigurable(t *testing.T) {
	c := NewClassifier(7)
	rec := RawRecord{ColumnExpiry: classifyNow.AddDate(0, 0, -30).Format("2006-01-02")}

	if c.IsMember(rec, classifyNow) {
		t.Error("IsMember = true with 7-day grace and 30-day-old expiry, want false")
	}
}
