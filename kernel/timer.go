package kernel

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	Next     *Timer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// Timer frequencies for common MCUs
const (
	TimerFreq = 12000000 // 12MHz default timer frequency
)

// TimerQueue holds timers sorted by wake time and the current time.
//
// The queue belongs to the main loop: handlers run on the caller of
// Advance and may schedule or cancel timers (including their own) while
// running.
type TimerQueue struct {
	list *Timer
	now  uint32
}

// NewTimerQueue creates an empty queue at time zero.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{}
}

// Now returns the current time in timer ticks.
func (q *TimerQueue) Now() uint32 {
	return q.now
}

// Schedule adds a timer to the queue. Scheduling a timer that is already
// queued moves it.
func (q *TimerQueue) Schedule(t *Timer) {
	q.Cancel(t)
	q.insert(t)
}

// Cancel removes a timer from the queue, reporting whether it was queued.
func (q *TimerQueue) Cancel(t *Timer) bool {
	if q.list == t {
		q.list = t.Next
		t.Next = nil
		return true
	}
	for cur := q.list; cur != nil; cur = cur.Next {
		if cur.Next == t {
			cur.Next = t.Next
			t.Next = nil
			return true
		}
	}
	return false
}

// Pending returns the number of queued timers.
func (q *TimerQueue) Pending() int {
	n := 0
	for cur := q.list; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Advance moves time forward by ticks, dispatching every timer that
// becomes due. Each handler observes Now() equal to its own wake time.
func (q *TimerQueue) Advance(ticks uint32) {
	target := q.now + ticks

	for q.list != nil && !timerIsBefore(target, q.list.WakeTime) {
		timer := q.list
		q.list = timer.Next
		timer.Next = nil // Clear Next pointer to avoid circular references

		if timerIsBefore(q.now, timer.WakeTime) {
			q.now = timer.WakeTime
		}

		// Reschedule if requested
		if timer.Handler(timer) == SF_RESCHEDULE {
			q.insert(timer)
		}
	}

	q.now = target
}

// insert inserts a timer in sorted order by WakeTime
func (q *TimerQueue) insert(t *Timer) {
	if q.list == nil || timerIsBefore(t.WakeTime, q.list.WakeTime) {
		t.Next = q.list
		q.list = t
		return
	}

	current := q.list
	for current.Next != nil && !timerIsBefore(t.WakeTime, current.Next.WakeTime) {
		current = current.Next
	}

	t.Next = current.Next
	current.Next = t
}

// timerIsBefore compares wake times across counter wrap-around.
func timerIsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32((uint64(us) * TimerFreq) / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32((uint64(ticks) * 1000000) / TimerFreq)
}
