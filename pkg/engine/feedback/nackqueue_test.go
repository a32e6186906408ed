package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/livekit/rtpengine/pkg/engine/rtcp"
)

func TestNackQueuePairsAfterGracePeriod(t *testing.T) {
	q := NewNackQueue()
	now := time.Now()

	q.Push(100, now)
	q.Push(102, now)

	// still inside the reordering grace period
	pairs, numNacked := q.Pairs(now.Add(5 * time.Millisecond))
	require.Empty(t, pairs)
	require.Equal(t, 0, numNacked)

	pairs, numNacked = q.Pairs(now.Add(25 * time.Millisecond))
	require.Equal(t, []rtcp.NackPair{{PacketID: 100, LostPackets: 0b10}}, pairs)
	require.Equal(t, 2, numNacked)
}

func TestNackQueueSplitsDistantSequences(t *testing.T) {
	q := NewNackQueue()
	now := time.Now()

	q.Push(100, now)
	q.Push(200, now)

	pairs, numNacked := q.Pairs(now.Add(25 * time.Millisecond))
	require.Equal(t, 2, numNacked)
	require.Equal(t, []rtcp.NackPair{
		{PacketID: 100},
		{PacketID: 200},
	}, pairs)
}

func TestNackQueueRemoveOnArrival(t *testing.T) {
	q := NewNackQueue()
	now := time.Now()

	q.Push(100, now)
	q.Push(101, now)
	q.Remove(100)

	pairs, _ := q.Pairs(now.Add(25 * time.Millisecond))
	require.Equal(t, []rtcp.NackPair{{PacketID: 101}}, pairs)
}

func TestNackQueueRetryBackoff(t *testing.T) {
	q := NewNackQueue()
	q.SetRTT(100 * time.Millisecond)
	now := time.Now()

	q.Push(100, now)

	// first try
	pairs, _ := q.Pairs(now.Add(25 * time.Millisecond))
	require.Len(t, pairs, 1)

	// retry requires an RTT to have passed, not just the minimum interval
	pairs, _ = q.Pairs(now.Add(50 * time.Millisecond))
	require.Empty(t, pairs)

	pairs, _ = q.Pairs(now.Add(130 * time.Millisecond))
	require.Len(t, pairs, 1)
}

func TestNackQueueGivesUp(t *testing.T) {
	q := NewNackQueue()
	q.SetRTT(20 * time.Millisecond)
	now := time.Now()

	q.Push(100, now)

	sends := 0
	for i := 1; i <= 100; i++ {
		pairs, _ := q.Pairs(now.Add(time.Duration(i) * 500 * time.Millisecond))
		sends += len(pairs)
	}
	require.Equal(t, nackMaxTries, sends)
	require.Equal(t, 0, q.Len(), "exhausted entry purged")
}

func TestNackQueueCapacity(t *testing.T) {
	q := NewNackQueue()
	now := time.Now()

	for sn := uint16(0); sn < nackCacheSize+10; sn++ {
		q.Push(sn, now)
	}
	require.Equal(t, nackCacheSize, q.Len())

	// oldest entries were dropped
	pairs, _ := q.Pairs(now.Add(25 * time.Millisecond))
	require.Equal(t, uint16(10), pairs[0].PacketID)
}
