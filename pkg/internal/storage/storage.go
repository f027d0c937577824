// Package storage 聚合流水线使用的外部存储：元数据库、对象存储、消息总线与 KV.
//
// Example:
//
//	mgr, err := storage.Init(ctx, cfg)
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	dbClient := mgr.GetDBClient()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/docpipe/pkg/configs"
	dbc "github.com/yeisme/docpipe/pkg/internal/storage/db"
	kvc "github.com/yeisme/docpipe/pkg/internal/storage/kv"
	mqc "github.com/yeisme/docpipe/pkg/internal/storage/mq"
	s3c "github.com/yeisme/docpipe/pkg/internal/storage/s3"
	nlog "github.com/yeisme/docpipe/pkg/log"
)

// Manager 聚合所有存储资源.
type Manager struct {
	S3 *s3c.Client
	DB *dbc.Client
	MQ *mqc.Client
	KV *kvc.Client
}

// Options 控制初始化哪些资源，CLI 子命令只需要其中一部分.
type Options struct {
	SkipS3 bool
	SkipMQ bool
	SkipKV bool
}

// Init 按配置初始化存储资源；任何一个失败都会关闭已打开的资源.
func Init(ctx context.Context, cfg *configs.AppConfig, opts Options) (*Manager, error) {
	m := &Manager{}

	dbi, err := dbc.New(ctx, cfg.DB, cfg.Metrics.Enabled)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	m.DB = dbi

	if !opts.SkipS3 {
		if m.S3, err = s3c.New(ctx, cfg.S3); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init s3: %w", err)
		}
	}

	if !opts.SkipMQ {
		if m.MQ, err = mqc.New(ctx, cfg.MQ, cfg.Metrics.Enabled); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init mq: %w", err)
		}
	}

	if !opts.SkipKV {
		if m.KV, err = kvc.NewKVClient(ctx, cfg.KV); err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init kv: %w", err)
		}
	}

	nlog.Logger().Info().Msg("storage manager initialized")

	return m, nil
}

// GetS3Client 获取 S3 客户端.
func (m *Manager) GetS3Client() *s3c.Client {
	return m.S3
}

// GetDBClient 获取 DB 客户端.
func (m *Manager) GetDBClient() *dbc.Client {
	return m.DB
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// GetKVClient 获取 KV 客户端.
func (m *Manager) GetKVClient() *kvc.Client {
	return m.KV
}

// Close 关闭所有已初始化的资源.
func (m *Manager) Close() error {
	var errs []error

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.S3 != nil {
		errs = append(errs, m.S3.Close())
	}

	if m.DB != nil {
		errs = append(errs, m.DB.Close())
	}

	return errors.Join(errs...)
}
