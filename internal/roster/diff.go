package roster

// DiffResult partitions a current batch against the previous one.
type DiffResult struct {
	// MissingEmail holds current rows with no email address. These are
	// flagged for manual handling and never synced automatically.
	MissingEmail []RawRecord
	// Lapsed holds previous rows whose email no longer appears in the
	// current batch.
	Lapsed []RawRecord
	// Current holds every current row that has an email, whether or
	// not it appeared previously.
	Current []RawRecord
}

// Diff computes the three partitions used by a sync run. Email
// comparison is an exact string match: the upstream exports have never
// been observed to vary casing for the same person, and loosening the
// join here could mass-lapse records, so any normalization belongs in
// a deliberate config change rather than this function.
//
// Rows sharing an email within one batch are kept as-is; callers see
// each row independently.
func Diff(previous, current []RawRecord) DiffResult {
	var res DiffResult

	currentEmails := make(map[string]struct{}, len(current))
	for _, rec := range current {
		if email := rec.Email(); email != "" {
			currentEmails[email] = struct{}{}
			res.Current = append(res.Current, rec)
		} else {
			res.MissingEmail = append(res.MissingEmail, rec)
		}
	}

	for _, rec := range previous {
		email := rec.Email()
		if email == "" {
			continue
		}
		if _, ok := currentEmails[email]; !ok {
			res.Lapsed = append(res.Lapsed, rec)
		}
	}

	return res
}
