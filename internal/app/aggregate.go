package app

import (
	"sort"

	"expiry_notifier/internal/domain/account"
)

// GroupByApprover partitions records into one batch per approver email.
// Batches come back ordered by approver email; records inside a batch are
// ordered by days remaining, then username. Records without an approver email
// are not batched.
func GroupByApprover(records []account.Record) []account.Batch {
	groups := make(map[string][]account.Record)
	for _, r := range records {
		if r.ApproverEmail == "" {
			continue
		}
		groups[r.ApproverEmail] = append(groups[r.ApproverEmail], r)
	}

	batches := make([]account.Batch, 0, len(groups))
	for approver, recs := range groups {
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].DaysRemaining != recs[j].DaysRemaining {
				return recs[i].DaysRemaining < recs[j].DaysRemaining
			}
			return recs[i].Username < recs[j].Username
		})
		batches = append(batches, account.Batch{ApproverEmail: approver, Records: recs})
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].ApproverEmail < batches[j].ApproverEmail
	})
	return batches
}
