package order

import "time"

// Order groups the pieces of one customer purchase. Priority runs 0 (lowest)
// to 5 (highest) and is advisory; the hard scheduling input is the due date.
type Order struct {
	ID       int
	Client   string
	Number   string
	DueDate  time.Time
	Priority int
}
