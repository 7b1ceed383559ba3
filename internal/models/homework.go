package models

type Status string

const (
	StatusApproved  Status = "approved"
	StatusReviewing Status = "reviewing"
	StatusRejected  Status = "rejected"
)

// Verdicts holds English translations of the review service verdicts.
var Verdicts = map[Status]string{
	StatusApproved:  "Review complete: the reviewer liked everything. Hooray!",
	StatusReviewing: "The work has been taken for review.",
	StatusRejected:  "Review complete: the reviewer left some comments.",
}

// Verdict returns the human-readable text for a status code.
func (s Status) Verdict() (string, bool) {
	v, ok := Verdicts[s]
	return v, ok
}

type Homework struct {
	Name   string
	Status Status
}
