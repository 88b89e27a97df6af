package lifecycle

import "strings"

type ReportKind int

const (
	// ReportUnknown is a word outside the vocabulary. It changes nothing.
	ReportUnknown ReportKind = iota
	ReportInProgress
	ReportDone
	ReportFailed
	// ReportStatus names a status directly, e.g. "COMMITTED".
	ReportStatus
)

func (k ReportKind) String() string {
	switch k {
	case ReportInProgress:
		return "in_progress"
	case ReportDone:
		return "done"
	case ReportFailed:
		return "failed"
	case ReportStatus:
		return "status"
	}
	return "unknown"
}

// Report is the parsed form of the status word an agent sends.
type Report struct {
	Kind   ReportKind
	Status Status // set for ReportStatus
	Raw    string
}

// ParseReport maps every input onto a Report. Case, surrounding space and
// '-' or ' ' separators are ignored. ok is false for words outside the
// vocabulary, which parse as ReportUnknown.
func ParseReport(raw string) (r Report, ok bool) {
	word := strings.ToUpper(strings.TrimSpace(raw))
	word = strings.NewReplacer("-", "_", " ", "_").Replace(word)

	r = Report{Raw: raw}
	switch word {
	case "IN_PROGRESS":
		r.Kind = ReportInProgress
	case "DONE":
		r.Kind = ReportDone
	case string(StatusFailed):
		r.Kind = ReportFailed
	default:
		if s := Status(word); s.Valid() {
			r.Kind = ReportStatus
			r.Status = s
		}
	}
	return r, r.Kind != ReportUnknown
}
