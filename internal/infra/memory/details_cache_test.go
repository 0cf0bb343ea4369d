package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grindolympiads/internal/domain"
)

func TestDetailsCacheCaches(t *testing.T) {
	loader := &countingLoader{details: map[string]domain.ChallengeDetails{"amc-firstTen": sampleDetails()}}
	cache := NewDetailsCache(loader, time.Minute)

	if _, err := cache.GetChallengeDetails(context.Background(), "amc-firstTen"); err != nil {
		t.Fatalf("get details: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls.Load())
	}

	if _, err := cache.GetChallengeDetails(context.Background(), "amc-firstTen"); err != nil {
		t.Fatalf("get details 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestDetailsCacheExpires(t *testing.T) {
	loader := &countingLoader{details: map[string]domain.ChallengeDetails{"amc-firstTen": sampleDetails()}}
	cache := NewDetailsCache(loader, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	_, err := cache.GetChallengeDetails(context.Background(), "amc-firstTen")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.GetChallengeDetails(context.Background(), "amc-firstTen")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load())

	require.NoError(t, cache.Invalidate(context.Background(), "amc-firstTen"))
	_, err = cache.GetChallengeDetails(context.Background(), "amc-firstTen")
	require.NoError(t, err)
	assert.EqualValues(t, 3, loader.calls.Load())
}

func TestDetailsCacheCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{
		details: map[string]domain.ChallengeDetails{"amc-firstTen": sampleDetails()},
		gate:    release,
	}
	cache := NewDetailsCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			details, err := cache.GetChallengeDetails(context.Background(), "amc-firstTen")
			assert.NoError(t, err)
			assert.Len(t, details.Problems, 2)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestDetailsCacheDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{details: map[string]domain.ChallengeDetails{}}
	cache := NewDetailsCache(loader, time.Minute)

	_, err := cache.GetChallengeDetails(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	_, err = cache.GetChallengeDetails(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	assert.EqualValues(t, 2, loader.calls.Load())
}

type countingLoader struct {
	details map[string]domain.ChallengeDetails
	gate    chan struct{}
	calls   atomic.Int32
}

func (l *countingLoader) LoadChallengeDetails(_ context.Context, challengeID string) (domain.ChallengeDetails, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	details, ok := l.details[challengeID]
	if !ok {
		return domain.ChallengeDetails{}, domain.ErrChallengeNotFound
	}
	return details, nil
}

func sampleDetails() domain.ChallengeDetails {
	return domain.ChallengeDetails{
		Challenge: domain.Challenge{
			ID:      "amc-firstTen",
			Name:    "First Ten Challenge for AMC 10A 2023",
			Type:    domain.ChallengeFirstTen,
			ExamIDs: []string{"amc"},
			Problems: []domain.ProblemRef{
				{Label: "1", ExamID: "amc", ProblemLabel: "1"},
				{Label: "2", ExamID: "amc", ProblemLabel: "2"},
			},
		},
		Problems: []domain.ProblemDetail{
			{Label: "1", ExamID: "amc", ExamName: "AMC 10A 2023", Number: "1", Statement: "What is 2 + 2?"},
			{Label: "2", ExamID: "amc", ExamName: "AMC 10A 2023", Number: "2", Statement: "What is 3 + 3?"},
		},
	}
}
