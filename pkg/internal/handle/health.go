package handle

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/storyvault/pkg/context"
	"github.com/yeisme/storyvault/pkg/internal/service"
)

const checkTimeout = 2 * time.Second

var errNotInitialized = errors.New("not initialized")

type healthCheck func(ctx context.Context) error

// checks 列出可探测的后端. 入队与锁依赖的 mq、kv 未配置时表现为不健康.
var checks = map[string]healthCheck{
	"db":    checkDB,
	"s3":    checkS3,
	"mq":    checkMQ,
	"kv":    checkKV,
	"index": checkIndex,
}

func checkDB(ctx context.Context) error {
	dbc := ctxPkg.Storage(ctx).GetDBClient()
	if dbc == nil || dbc.DB == nil {
		return errNotInitialized
	}

	sqlDB, err := dbc.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func checkS3(ctx context.Context) error {
	s3c := ctxPkg.Storage(ctx).GetS3Client()
	if s3c == nil || s3c.Client == nil {
		return errNotInitialized
	}

	return s3c.HealthCheck(ctx)
}

func checkMQ(ctx context.Context) error {
	mqc := ctxPkg.Storage(ctx).GetMQClient()
	if mqc == nil || mqc.Publisher() == nil {
		return errNotInitialized
	}

	return nil
}

// checkKV 写入并读回一个短期检查键.
func checkKV(ctx context.Context) error {
	kvc := ctxPkg.Storage(ctx).GetKVClient()
	if kvc == nil || kvc.KVStore == nil {
		return errNotInitialized
	}

	const key = "health:check"
	if err := kvc.Set(ctx, key, []byte("ok"), checkTimeout); err != nil {
		return err
	}

	_, err := kvc.Get(ctx, key)

	return err
}

func checkIndex(ctx context.Context) error {
	d := service.DepsFrom(ctx)
	if d == nil || d.Index == nil {
		return errNotInitialized
	}

	return d.Index.Ping(ctx)
}

type componentHealth struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func runCheck(ctx context.Context, name string, p healthCheck) componentHealth {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := p(ctx); err != nil {
		return componentHealth{Component: name, Status: "unhealthy", Error: err.Error()}
	}

	return componentHealth{Component: name, Status: "ok"}
}

// HealthComponent 探测单个后端.
func HealthComponent(c *gin.Context) {
	name := c.Param("component")

	p, ok := checks[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown component: " + name})
		return
	}

	res := runCheck(c.Request.Context(), name, p)
	if res.Error != "" {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	c.JSON(http.StatusOK, res)
}

// Health 并发探测全部后端，任一不健康时返回 503.
func Health(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]componentHealth, 0, len(checks))
	)

	for name, p := range checks {
		wg.Go(func() {
			res := runCheck(ctx, name, p)

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		})
	}

	wg.Wait()

	slices.SortFunc(results, func(a, b componentHealth) int {
		switch {
		case a.Component < b.Component:
			return -1
		case a.Component > b.Component:
			return 1
		}

		return 0
	})

	status, overall := http.StatusOK, "ok"

	for _, r := range results {
		if r.Error != "" {
			status, overall = http.StatusServiceUnavailable, "degraded"
			break
		}
	}

	c.JSON(status, gin.H{"status": overall, "components": results})
}
