package api

import "sync"

// batchLimiter caps concurrent trajectory requests per client IP and in
// total.
type batchLimiter struct {
	mu       sync.Mutex
	inFlight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newBatchLimiter(maxPerIP int) *batchLimiter {
	if maxPerIP < 1 {
		maxPerIP = 1
	}
	return &batchLimiter{
		inFlight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: 64,
	}
}

// acquire registers a batch for ip. It returns false if the per-IP or the
// global limit has been reached.
func (l *batchLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.inFlight[ip] >= l.maxPerIP {
		return false
	}
	l.inFlight[ip]++
	l.total++
	return true
}

func (l *batchLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.inFlight[ip]--
	l.total--
	if l.inFlight[ip] <= 0 {
		delete(l.inFlight, ip)
	}
}

func (l *batchLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[ip]
}
