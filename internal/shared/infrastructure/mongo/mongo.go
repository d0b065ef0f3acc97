package mongo

import (
	"context"
	"errors"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"TribalRealms/internal/shared/serverconfig"
)

// Open 连接 mongodb 并 Ping 一次。
// 世界仓储的提交依赖多文档事务，单机实例只告警不拒绝，便于本地只读排查。
func Open(cfg serverconfig.MongoDBConfig, l *zap.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb uri is empty")
	}
	if l == nil {
		l = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI).SetTimeout(timeout))
	if err != nil {
		return nil, err
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	setName := replicaSet(ctx, client)
	if setName == "" {
		l.Warn("mongodb is not a replica set, world commits need transactions", zap.String("uri", Redact(cfg.URI)))
	}
	l.Info("open mongodb success",
		zap.String("uri", Redact(cfg.URI)),
		zap.String("database", cfg.Database),
		zap.String("replica_set", setName),
	)
	return client, nil
}

func replicaSet(ctx context.Context, client *mongo.Client) string {
	var hello struct {
		SetName string `bson:"setName"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return ""
	}
	return hello.SetName
}

// Redact 去掉连接串中的密码，用于日志。
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
