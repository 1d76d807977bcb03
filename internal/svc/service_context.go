package svc

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/fachebot/ai-news-digest/internal/cache"
	"github.com/fachebot/ai-news-digest/internal/config"
	"github.com/fachebot/ai-news-digest/internal/engine"
	"github.com/fachebot/ai-news-digest/internal/llm"
	"github.com/fachebot/ai-news-digest/internal/logger"
	"github.com/fachebot/ai-news-digest/internal/metrics"
	"github.com/fachebot/ai-news-digest/internal/model"
	"github.com/fachebot/ai-news-digest/internal/publish"

	"golang.org/x/net/proxy"
)

// ArtifactStore 报告存储：读写与每日报告查询
type ArtifactStore interface {
	engine.Store
	cache.Store
}

type ServiceContext struct {
	Config         *config.Config
	DB             *sql.DB
	TransportProxy *http.Transport
	RecordModel    *model.RecordModel
	ArtifactModel  *model.ArtifactModel
	DailyRunModel  *model.DailyRunModel
	ArtifactStore  ArtifactStore
	LLMClient      *llm.Client
	Metrics        *metrics.Metrics
	Publisher      *publish.Publisher
	Engine         *engine.Engine
	artifactCache  *cache.ArtifactCache
}

func NewServiceContext(c *config.Config) *ServiceContext {
	if err := logger.SetLevel(c.Log.Level); err != nil {
		logger.Warnf("设置日志级别失败, %v", err)
	}

	// 创建数据库连接
	db, err := model.Open(context.Background(), c.Storage.Path)
	if err != nil {
		logger.Fatalf("打开数据库失败, %v", err)
	}

	// 创建SOCKS5代理
	var transportProxy *http.Transport
	var transport http.RoundTripper
	if c.Sock5Proxy.Enable {
		socks5Proxy := fmt.Sprintf("%s:%d", c.Sock5Proxy.Host, c.Sock5Proxy.Port)
		dialer, err := proxy.SOCKS5("tcp", socks5Proxy, nil, proxy.Direct)
		if err != nil {
			logger.Fatalf("创建SOCKS5代理失败, %v", err)
		}

		transportProxy = &http.Transport{
			Dial:            dialer.Dial,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		transport = transportProxy
	}

	artifactModel := model.NewArtifactModel(db)
	svcCtx := &ServiceContext{
		Config:         c,
		DB:             db,
		TransportProxy: transportProxy,
		RecordModel:    model.NewRecordModel(db),
		ArtifactModel:  artifactModel,
		DailyRunModel:  model.NewDailyRunModel(db),
		ArtifactStore:  artifactModel,
		LLMClient:      llm.NewClient(&c.LLM, transport),
		Metrics:        metrics.New(),
		Publisher:      publish.NewPublisher(c.Output.Dir),
	}

	// Redis 缓存
	if c.Redis.Enable {
		svcCtx.artifactCache = cache.NewArtifactCache(cache.NewRedisClient(&c.Redis), artifactModel, time.Duration(c.Redis.TTL)*time.Second)
		svcCtx.ArtifactStore = svcCtx.artifactCache
		logger.Infof("[Cache] 已启用 Redis 缓存 %s", c.Redis.Addr)
	}

	svcCtx.Engine, err = engine.New(engine.Deps{
		Source:   svcCtx.RecordModel,
		Store:    svcCtx.ArtifactStore,
		LLM:      svcCtx.LLMClient,
		Observer: svcCtx.Metrics,
	}, &c.Summary)
	if err != nil {
		logger.Fatalf("创建报告引擎失败, %v", err)
	}
	return svcCtx
}

func (svcCtx *ServiceContext) Close() {
	if svcCtx.artifactCache != nil {
		if err := svcCtx.artifactCache.Close(); err != nil {
			logger.Errorf("关闭 Redis 失败, %v", err)
		}
	}
	if err := svcCtx.DB.Close(); err != nil {
		logger.Errorf("关闭数据库失败, %v", err)
	}
}
