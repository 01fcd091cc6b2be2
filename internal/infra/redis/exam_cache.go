package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"exam-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ExamSource is the authoritative exam repository behind the cache.
type ExamSource interface {
	Create(ctx context.Context, exam domain.Exam) (string, error)
	Get(ctx context.Context, id string) (domain.Exam, error)
	List(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error)
	Update(ctx context.Context, id string, patch domain.ExamPatch) error
	Delete(ctx context.Context, id string) error
}

// ExamCache is a read-through cache in front of an ExamSource. Exams are
// stored as JSON under exam:{id} with a jittered TTL and dropped on every
// write. Redis errors degrade to reading the source.
type ExamCache struct {
	client *redis.Client
	source ExamSource
	ttl    time.Duration
	sf     singleflight.Group

	// epoch moves on every invalidation; a load that saw an older epoch
	// must not write its result back.
	fillMu sync.Mutex
	epoch  uint64

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewExamCache(client *redis.Client, source ExamSource, ttl time.Duration) *ExamCache {
	return &ExamCache{
		client: client,
		source: source,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ExamCache) Create(ctx context.Context, exam domain.Exam) (string, error) {
	return c.source.Create(ctx, exam)
}

func (c *ExamCache) Get(ctx context.Context, id string) (domain.Exam, error) {
	if exam, ok := c.cached(ctx, id); ok {
		return exam, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if exam, ok := c.cached(ctx, id); ok {
			return exam, nil
		}
		c.fillMu.Lock()
		seen := c.epoch
		c.fillMu.Unlock()

		exam, err := c.source.Get(ctx, id)
		if err != nil {
			return domain.Exam{}, err
		}
		c.fill(ctx, id, exam, seen)
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam).Clone(), nil
}

// List always reads the source; listings are administrator traffic only.
func (c *ExamCache) List(ctx context.Context, filter domain.ExamFilter) ([]domain.Exam, error) {
	return c.source.List(ctx, filter)
}

func (c *ExamCache) Update(ctx context.Context, id string, patch domain.ExamPatch) error {
	err := c.source.Update(ctx, id, patch)
	c.invalidate(ctx, id)
	return err
}

func (c *ExamCache) Delete(ctx context.Context, id string) error {
	err := c.source.Delete(ctx, id)
	c.invalidate(ctx, id)
	return err
}

func (c *ExamCache) cached(ctx context.Context, id string) (domain.Exam, bool) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		return domain.Exam{}, false
	}
	return exam, true
}

func (c *ExamCache) fill(ctx context.Context, id string, exam domain.Exam, seen uint64) {
	data, err := json.Marshal(exam)
	if err != nil {
		return
	}
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	if c.epoch != seen {
		return
	}
	_ = c.client.Set(ctx, c.key(id), data, c.ttlWithJitter()).Err()
}

func (c *ExamCache) invalidate(ctx context.Context, id string) {
	c.fillMu.Lock()
	c.epoch++
	c.fillMu.Unlock()
	c.sf.Forget(id)
	_ = c.client.Del(context.WithoutCancel(ctx), c.key(id)).Err()
}

func (c *ExamCache) key(id string) string {
	return "exam:" + id
}

func (c *ExamCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
