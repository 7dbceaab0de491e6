package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

// Record is the persisted shape of one ledger entry.
type Record struct {
	Key                string `gorm:"primaryKey;size:191"`
	ServiceName        string `gorm:"size:64"`
	Route              string `gorm:"size:128"`
	RequestFingerprint string `gorm:"size:64"`
	Status             Status `gorm:"size:16;index"`
	ResultPayload      []byte `gorm:"type:mediumblob"`
	ResultStatusCode   int
	FailureReason      string `gorm:"size:255"`
	CreatedAt          time.Time
	UpdatedAt          time.Time `gorm:"index"`
}

func (Record) TableName() string { return "idempotency_records" }

var checkOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "idempotency_checks_total",
	Help: "Idempotency check outcomes by result.",
}, []string{"outcome"})

// Store is the MySQL-backed Ledger.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Check(ctx context.Context, key, serviceName, route string, payload []byte) (*CheckResult, error) {
	fingerprint := Fingerprint(payload)

	var rec Record
	err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, err := s.create(ctx, key, serviceName, route, fingerprint)
		if err != nil {
			return nil, err
		}
		if created {
			checkOutcomes.WithLabelValues("fresh").Inc()
			return &CheckResult{Fresh: true}, nil
		}
		// Lost the insert race; the winner's record must exist now.
		if err := s.db.WithContext(ctx).Where("`key` = ?", key).First(&rec).Error; err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if rec.RequestFingerprint != fingerprint {
		checkOutcomes.WithLabelValues("key_reused").Inc()
		return nil, ErrKeyReused
	}

	switch rec.Status {
	case StatusCompleted:
		checkOutcomes.WithLabelValues("cached").Inc()
		return &CheckResult{
			Fresh:            false,
			ResultPayload:    rec.ResultPayload,
			ResultStatusCode: rec.ResultStatusCode,
		}, nil
	case StatusPending:
		checkOutcomes.WithLabelValues("in_progress").Inc()
		return nil, ErrInProgress
	case StatusFailed:
		// Re-admit exactly one retryer: the guarded update loses if a
		// concurrent retry already flipped the record back to pending.
		res := s.db.WithContext(ctx).Model(&Record{}).
			Where("`key` = ? AND status = ?", key, StatusFailed).
			Updates(map[string]interface{}{"status": StatusPending, "failure_reason": ""})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			checkOutcomes.WithLabelValues("in_progress").Inc()
			return nil, ErrInProgress
		}
		checkOutcomes.WithLabelValues("retry").Inc()
		return &CheckResult{Fresh: true}, nil
	default:
		return nil, errors.New("idempotency record in unknown status " + string(rec.Status))
	}
}

// create inserts the pending record, reporting false when a concurrent
// request with the same key won the race.
func (s *Store) create(ctx context.Context, key, serviceName, route, fingerprint string) (bool, error) {
	rec := Record{
		Key:                key,
		ServiceName:        serviceName,
		Route:              route,
		RequestFingerprint: fingerprint,
		Status:             StatusPending,
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if err == nil {
		return true, nil
	}
	if isDuplicateKey(err) {
		return false, nil
	}
	return false, err
}

func (s *Store) MarkCompleted(ctx context.Context, key string, result []byte, statusCode int) error {
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("`key` = ? AND status = ?", key, StatusPending).
		Updates(map[string]interface{}{
			"status":             StatusCompleted,
			"result_payload":     result,
			"result_status_code": statusCode,
		}).Error
}

func (s *Store) MarkFailed(ctx context.Context, key, reason string) error {
	return s.db.WithContext(ctx).Model(&Record{}).
		Where("`key` = ? AND status = ?", key, StatusPending).
		Updates(map[string]interface{}{
			"status":         StatusFailed,
			"failure_reason": reason,
		}).Error
}

// Sweep deletes settled records past the retention window. Pending records
// are never swept; they guard an execution that may still be in flight.
func (s *Store) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []Status{StatusCompleted, StatusFailed}, olderThan).
		Delete(&Record{})
	return res.RowsAffected, res.Error
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}
