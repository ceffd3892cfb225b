package models

// StatusCount is one row of the by-status dashboard aggregate.
type StatusCount struct {
	Status PayoutStatus
	Count  int64
	Sum    int64
}
