package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-ledger/models"
)

// SideEffects receives post-commit notifications and audit records. Calls
// must return immediately; delivery happens elsewhere and its failure never
// reaches the ledger operation that produced the event.
type SideEffects interface {
	Notify(n models.Notification)
	Audit(a models.AdminAuditLog)
}

// NopSideEffects discards everything.
type NopSideEffects struct{}

func (NopSideEffects) Notify(models.Notification) {}
func (NopSideEffects) Audit(models.AdminAuditLog) {}

// Notifier delivers one user notification.
type Notifier interface {
	Name() string
	Deliver(ctx context.Context, n models.Notification) error
}

// AuditSink stores one admin audit record.
type AuditSink interface {
	Name() string
	Record(ctx context.Context, a models.AdminAuditLog) error
}

// DBNotifier writes the in-app notification inbox.
type DBNotifier struct{ DB *gorm.DB }

func (DBNotifier) Name() string { return "db_notification" }

func (d DBNotifier) Deliver(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return d.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&n).Error
}

// RedisStreamNotifier publishes notifications to a Redis stream for push
// delivery services to consume.
type RedisStreamNotifier struct {
	Client redis.UniversalClient
	Stream string
	MaxLen int64
}

func (RedisStreamNotifier) Name() string { return "redis_stream" }

func (r RedisStreamNotifier) Deliver(ctx context.Context, n models.Notification) error {
	maxLen := r.MaxLen
	if maxLen == 0 {
		maxLen = 100000
	}
	return r.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":      n.ID,
			"user_id": n.UserID,
			"kind":    n.Kind,
			"text":    n.Text,
			"at":      n.CreatedAt.UTC().Format(time.RFC3339),
		},
	}).Err()
}

// DBAuditSink writes admin_audit_logs.
type DBAuditSink struct{ DB *gorm.DB }

func (DBAuditSink) Name() string { return "db_audit" }

func (d DBAuditSink) Record(ctx context.Context, a models.AdminAuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return d.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error
}

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2AuditArchive keeps an immutable JSON copy of each audit record in an
// R2 bucket, keyed by day.
type R2AuditArchive struct {
	Client ObjectPutter
	Bucket string
}

func (R2AuditArchive) Name() string { return "r2_audit" }

func (r R2AuditArchive) Record(ctx context.Context, a models.AdminAuditLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	at := a.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("audit/%s/%s-%s.json", at.UTC().Format("2006/01/02"), a.Action, a.ID)
	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}
