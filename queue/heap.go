package queue

import "container/heap"

// jobHeap orders jobs by front tier, then priority (high first), then
// insertion sequence (old first). Jobs put back at the front carry a
// positive, increasing front value so the latest one runs next regardless
// of priority.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.front != b.front {
		return a.front > b.front
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	job := x.(*Job)
	job.index = len(*h)
	*h = append(*h, job)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.index = -1
	*h = old[:n-1]
	return job
}

// pendingJobs wraps jobHeap with the sequence counters.
type pendingJobs struct {
	h        jobHeap
	seq      uint64
	frontSeq uint64
}

// push inserts job in priority order.
func (p *pendingJobs) push(job *Job) {
	p.seq++
	job.seq = p.seq
	job.front = 0
	heap.Push(&p.h, job)
}

// pushFront inserts job ahead of everything currently pending.
func (p *pendingJobs) pushFront(job *Job) {
	p.frontSeq++
	job.front = p.frontSeq
	heap.Push(&p.h, job)
}

// pop removes the next job, or returns nil when empty.
func (p *pendingJobs) pop() *Job {
	if p.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&p.h).(*Job)
}

func (p *pendingJobs) len() int {
	return p.h.Len()
}

// drainAll empties the heap and returns its jobs in no particular order.
func (p *pendingJobs) drainAll() []*Job {
	jobs := []*Job(p.h)
	p.h = nil
	return jobs
}
