package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"exam-session-service/internal/domain"
	"exam-session-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestExamCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	source := &countingSource{ExamRepository: memory.NewExamRepository()}
	id, _ := source.Create(context.Background(), sampleExam())
	cache := NewExamCache(newClient(mr), source, time.Minute)

	exam, err := cache.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if exam.AnswerKey["q1"] != domain.ChoiceB {
		t.Fatalf("unexpected exam %+v", exam)
	}
	if source.gets.Load() != 1 {
		t.Fatalf("expected source called once, got %d", source.gets.Load())
	}
	if !mr.Exists("exam:" + id) {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("exam:" + id); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("ttl %v outside jitter window", ttl)
	}

	// Second call should hit cache, source not incremented.
	cached, _ := cache.Get(context.Background(), id)
	if source.gets.Load() != 1 {
		t.Fatalf("expected cache hit, source calls=%d", source.gets.Load())
	}
	if cached.Audio[1].Ref != "memory/a.mp3" || len(cached.Images[2]) != 1 {
		t.Fatalf("media lost through cache: %+v", cached)
	}
}

func TestExamCacheInvalidatesOnWrite(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	source := &countingSource{ExamRepository: memory.NewExamRepository()}
	id, _ := source.Create(ctx, sampleExam())
	cache := NewExamCache(newClient(mr), source, time.Minute)

	_, _ = cache.Get(ctx, id)
	assigned := true
	if err := cache.Update(ctx, id, domain.ExamPatch{Assigned: &assigned}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists("exam:" + id) {
		t.Fatalf("expected cache entry dropped after update")
	}
	exam, _ := cache.Get(ctx, id)
	if !exam.Assigned {
		t.Fatalf("stale exam served after update")
	}

	if err := cache.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Get(ctx, id); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound after delete, got %v", err)
	}
}

func TestExamCacheCollapsesConcurrentMisses(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	source := &countingSource{ExamRepository: memory.NewExamRepository(), gate: make(chan struct{})}
	id, _ := source.Create(ctx, sampleExam())
	cache := NewExamCache(newClient(mr), source, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(ctx, id); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(source.gate)
	wg.Wait()

	if n := source.gets.Load(); n != 1 {
		t.Fatalf("expected one source load, got %d", n)
	}
}

func TestExamCacheDropsLoadRacingAnUpdate(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	source := &slowSource{
		ExamRepository: memory.NewExamRepository(),
		loaded:         make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	id, _ := source.Create(ctx, sampleExam())
	cache := NewExamCache(newClient(mr), source, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cache.Get(ctx, id)
	}()
	<-source.loaded

	assigned := true
	limit := 900
	if err := cache.Update(ctx, id, domain.ExamPatch{Assigned: &assigned, TimeLimitSeconds: &limit}); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(source.release)
	<-done

	if mr.Exists("exam:" + id) {
		t.Fatalf("load that raced the update was written to the cache")
	}
	exam, err := cache.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !exam.Assigned || exam.TimeLimitSeconds != 900 {
		t.Fatalf("stale exam served after update: %+v", exam)
	}
}

func TestExamCacheFallsBackWhenRedisIsDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	source := &countingSource{ExamRepository: memory.NewExamRepository()}
	id, _ := source.Create(context.Background(), sampleExam())
	cache := NewExamCache(client, source, time.Minute)

	if _, err := cache.Get(context.Background(), id); err != nil {
		t.Fatalf("expected source read despite redis outage, got %v", err)
	}
}

type countingSource struct {
	*memory.ExamRepository
	gets atomic.Int32
	gate chan struct{}
}

func (s *countingSource) Get(ctx context.Context, id string) (domain.Exam, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.ExamRepository.Get(ctx, id)
}

func sampleExam() domain.Exam {
	return domain.Exam{
		Name:      "Mock 1",
		CreatedBy: "proctor-1",
		Audio:     map[int]domain.MediaRef{1: {Ref: "memory/a.mp3", Filename: "a.mp3"}},
		Images:    map[int][]domain.MediaRef{2: {{Ref: "memory/b.png", Filename: "b.png"}}},
		AnswerKey: domain.AnswerKey{"q1": domain.ChoiceB},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

// slowSource reads the exam, then holds the result until released.
type slowSource struct {
	*memory.ExamRepository
	loaded  chan struct{}
	release chan struct{}
}

func (s *slowSource) Get(ctx context.Context, id string) (domain.Exam, error) {
	exam, err := s.ExamRepository.Get(ctx, id)
	select {
	case s.loaded <- struct{}{}:
	default:
	}
	<-s.release
	return exam, err
}
