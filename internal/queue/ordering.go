package queue

import (
	"sort"

	"liveline/internal/models"
)

// Order returns the serving order of the waiting visitors in vs. Visitors
// with a manual order come first, sorted by priority, order, then ticket
// number; the rest follow sorted by priority then ticket number. Visitors in
// any other status are ignored. The input slice is not modified.
func Order(vs []models.Visitor) []models.Visitor {
	var manual, natural []models.Visitor
	for _, v := range vs {
		if v.Status != models.StatusWaiting {
			continue
		}
		if v.Order != nil {
			manual = append(manual, v)
		} else {
			natural = append(natural, v)
		}
	}

	sort.SliceStable(manual, func(i, j int) bool {
		a, b := manual[i], manual[j]
		if a.IsPriority != b.IsPriority {
			return a.IsPriority
		}
		if *a.Order != *b.Order {
			return *a.Order < *b.Order
		}
		return a.TicketNumber < b.TicketNumber
	})
	sort.SliceStable(natural, func(i, j int) bool {
		a, b := natural[i], natural[j]
		if a.IsPriority != b.IsPriority {
			return a.IsPriority
		}
		return a.TicketNumber < b.TicketNumber
	})

	return append(manual, natural...)
}

// maxOrder returns the highest manual order among waiting visitors, 0 if none.
func maxOrder(vs []models.Visitor) int {
	highest := 0
	for _, v := range vs {
		if v.Status == models.StatusWaiting && v.Order != nil && *v.Order > highest {
			highest = *v.Order
		}
	}
	return highest
}

func maxTicket(vs []models.Visitor) int64 {
	var highest int64
	for _, v := range vs {
		if v.TicketNumber > highest {
			highest = v.TicketNumber
		}
	}
	return highest
}
