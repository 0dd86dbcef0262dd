package scheduler

import "signal_bot/internal/models"

type item struct {
	ex    models.ScheduledExecution
	seq   uint64
	index int
}

// queue: min-heap по моменту входа, при равенстве по порядку поступления.
type queue []*item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if !q[i].ex.At.Equal(q[j].ex.At) {
		return q[i].ex.At.Before(q[j].ex.At)
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *queue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}
