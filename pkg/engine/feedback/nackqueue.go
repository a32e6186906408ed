package feedback

import (
	"math"
	"time"

	"github.com/livekit/rtpengine/pkg/engine/rtcp"
)

const (
	nackMaxTries      = 5
	nackCacheSize     = 100
	nackMinInterval   = 20 * time.Millisecond
	nackMaxInterval   = 400 * time.Millisecond
	nackBackoffFactor = 1.25
)

// NackQueue tracks sequence numbers reported missing by the jitter buffer
// and batches them into Generic NACK pairs, backing off retries by RTT.
// A sequence number is retried until it arrives, or nackMaxTries attempts
// have gone unanswered.
type NackQueue struct {
	entries []*nackEntry
	rtt     time.Duration
}

func NewNackQueue() *NackQueue {
	return &NackQueue{
		entries: make([]*nackEntry, 0, nackCacheSize),
	}
}

func (q *NackQueue) SetRTT(rtt time.Duration) {
	q.rtt = rtt
}

// Push registers a missing sequence number. The oldest entry is dropped
// once the queue is full.
func (q *NackQueue) Push(sn uint16, now time.Time) {
	if len(q.entries) == cap(q.entries) {
		copy(q.entries[0:], q.entries[1:])
		q.entries = q.entries[:len(q.entries)-1]
	}

	q.entries = append(q.entries, &nackEntry{
		seqNum:       sn,
		lastNackedAt: now,
	})
}

// Remove forgets a sequence number, called when the packet finally arrives.
func (q *NackQueue) Remove(sn uint16) {
	for idx, entry := range q.entries {
		if entry.seqNum != sn {
			continue
		}

		copy(q.entries[idx:], q.entries[idx+1:])
		q.entries = q.entries[:len(q.entries)-1]
		break
	}
}

// Pairs returns the NACK pairs due for (re)transmission and the number of
// sequence numbers they cover. Entries past their retry budget are purged.
func (q *NackQueue) Pairs(now time.Time) ([]rtcp.NackPair, int) {
	if len(q.entries) == 0 {
		return nil, 0
	}

	// force a fresh pair for the first due sequence number
	baseSN := q.entries[0].seqNum - 17

	var snsToPurge []uint16

	numNacked := 0
	isPairActive := false
	var pair rtcp.NackPair
	var pairs []rtcp.NackPair
	for _, entry := range q.entries {
		shouldSend, shouldRemove := entry.check(now, q.rtt)
		if shouldRemove {
			snsToPurge = append(snsToPurge, entry.seqNum)
			continue
		}
		if !shouldSend {
			continue
		}

		numNacked++
		if (entry.seqNum - baseSN) > 16 {
			if isPairActive {
				pairs = append(pairs, pair)
			}

			baseSN = entry.seqNum
			pair = rtcp.NackPair{PacketID: entry.seqNum}
			isPairActive = true
		} else {
			pair.LostPackets |= 1 << (entry.seqNum - baseSN - 1)
		}
	}
	if isPairActive {
		pairs = append(pairs, pair)
	}

	for _, sn := range snsToPurge {
		q.Remove(sn)
	}

	return pairs, numNacked
}

func (q *NackQueue) Len() int {
	return len(q.entries)
}

// ------------------------------------------------

type nackEntry struct {
	seqNum       uint16
	tries        uint8
	lastNackedAt time.Time
}

// check reports whether the entry is due for another NACK, or exhausted.
// The first try waits a short grace period for reordering; retries back
// off exponentially on RTT, capped.
func (e *nackEntry) check(now time.Time, rtt time.Duration) (shouldSend bool, shouldRemove bool) {
	if e.tries >= nackMaxTries {
		shouldRemove = true
		return
	}

	var requiredInterval time.Duration
	if e.tries > 0 {
		requiredInterval = nackMaxInterval
		backoffInterval := time.Duration(float64(rtt) * math.Pow(nackBackoffFactor, float64(e.tries-1)))
		if backoffInterval < requiredInterval {
			requiredInterval = backoffInterval
		}
	}
	if requiredInterval < nackMinInterval {
		requiredInterval = nackMinInterval
	}

	if now.Sub(e.lastNackedAt) < requiredInterval {
		return
	}

	e.tries++
	e.lastNackedAt = now
	shouldSend = true
	return
}
