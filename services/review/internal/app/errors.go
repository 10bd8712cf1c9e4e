package app

import (
	"fmt"
	"strings"
)

// SharedReviewersError blocks a cleanup that would delete reviewers
// still matched to other manuscripts without explicit confirmation.
type SharedReviewersError struct {
	ReviewerIDs []string
}

func (e *SharedReviewersError) Error() string {
	return fmt.Sprintf("reviewers shared with other manuscripts require confirmation: %s",
		strings.Join(e.ReviewerIDs, ", "))
}
