package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// advisoryLockKey identifies the relayer's session lock in pg_advisory_lock space.
const advisoryLockKey = 0x6272646731

var ErrLocked = errors.New("ledger is locked by another relayer")

type cursorRow struct {
	Role      string `gorm:"primaryKey"`
	Block     uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

func (cursorRow) TableName() string { return "relay_cursors" }

type eventRow struct {
	ID          string        `gorm:"primaryKey"`
	Role        string        `gorm:"index;not null"`
	Status      models.Status `gorm:"index;not null"`
	BlockNumber uint64        `gorm:"not null"`
	LogIndex    uint          `gorm:"not null"`
	Data        []byte        `gorm:"type:jsonb;not null"`
	UpdatedAt   time.Time
}

func (eventRow) TableName() string { return "relay_events" }

// PgStore keeps both the cursors and the processed-event log in Postgres.
type PgStore struct {
	db   *gorm.DB
	lock *sql.Conn
}

func NewPgStore(dsn string) (*PgStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	return NewPgStoreFromDB(db)
}

func NewPgStoreFromDB(db *gorm.DB) (*PgStore, error) {
	if err := db.AutoMigrate(&cursorRow{}, &eventRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return &PgStore{db: db}, nil
}

// Lock takes a session advisory lock held until Close, so only one relayer
// writes to the ledger.
func (s *PgStore) Lock(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", advisoryLockKey).Scan(&ok); err != nil {
		_ = conn.Close()
		return err
	}
	if !ok {
		_ = conn.Close()
		return ErrLocked
	}
	s.lock = conn
	return nil
}

func (s *PgStore) Close() error {
	if s.lock != nil {
		_ = s.lock.Close()
		s.lock = nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PgStore) Load(ctx context.Context, role models.Role) (uint64, bool, error) {
	var row cursorRow
	err := s.db.WithContext(ctx).Where("role = ?", string(role)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return row.Block, true, nil
}

func (s *PgStore) Store(ctx context.Context, role models.Role, block uint64) error {
	if !role.Valid() {
		return errors.Newf("invalid role %q", role)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row cursorRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("role = ?", string(role)).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&cursorRow{Role: string(role), Block: block}).Error
		case err != nil:
			return err
		case block < row.Block:
			return errors.Wrapf(ErrCursorRegression, "%s: %d < %d", role, block, row.Block)
		}
		return tx.Model(&cursorRow{}).Where("role = ?", string(role)).Update("block", block).Error
	})
}

func (s *PgStore) Put(ctx context.Context, rec *models.EventRecord) error {
	if rec.ID == "" {
		return errors.New("event record without id")
	}
	blob, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := eventRow{
		ID:          rec.ID,
		Role:        string(rec.Role),
		Status:      rec.Status,
		BlockNumber: rec.BlockNumber,
		LogIndex:    rec.LogIndex,
		Data:        blob,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "status", "block_number", "log_index", "data", "updated_at"}),
	}).Create(&row).Error
}

func (s *PgStore) Get(ctx context.Context, id string) (*models.EventRecord, error) {
	var row eventRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.EventRecord
	if err := json.Unmarshal(row.Data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PgStore) Scan(ctx context.Context, visit func(*models.EventRecord) error) error {
	var rows []eventRow
	res := s.db.WithContext(ctx).FindInBatches(&rows, 500, func(tx *gorm.DB, batch int) error {
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec models.EventRecord
			if err := json.Unmarshal(row.Data, &rec); err != nil {
				return err
			}
			if err := visit(&rec); err != nil {
				return err
			}
		}
		return nil
	})
	return res.Error
}
