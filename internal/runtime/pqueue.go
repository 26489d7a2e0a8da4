// ABOUTME: priorityQueue orders queued envelopes by (priority, seq) using container/heap.
// ABOUTME: seq is a monotonic counter; ties within a priority class are FIFO, never by envelope comparison.
package runtime

import (
	"container/heap"

	"github.com/2389-research/mail/internal/message"
)

// queuedMessage pairs an envelope with its derived priority and submission
// sequence number, per spec.md §3 invariant 5: ordering within a priority
// class is FIFO by seq, never by timestamp or envelope comparison.
type queuedMessage struct {
	priority int
	seq      uint64
	msg      message.MAILMessage
}

// priorityQueue implements container/heap.Interface over queuedMessage,
// lowest priority value first, and within a priority class lowest seq first.
type priorityQueue []*queuedMessage

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*queuedMessage))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

var _ = heap.Interface(&priorityQueue{})
