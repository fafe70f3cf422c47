// Copyright 2025 Alibaba Group Holding Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history keeps published snapshots in a SQL database.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alibaba/opensandbox/healthd/pkg/log"
	"github.com/alibaba/opensandbox/healthd/pkg/snapshot"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"

	MaxListLimit = 1000
)

var ErrUnknownDriver = errors.New("unknown history driver")

type record struct {
	ID          string `gorm:"primaryKey;size:36"`
	GeneratedAt int64  `gorm:"index;not null"`
	Payload     string `gorm:"type:text;not null"`
}

func (record) TableName() string {
	return "snapshots"
}

// Store is a gorm backed snapshot history.
type Store struct {
	db        *gorm.DB
	retention time.Duration
}

// Open connects to the database and migrates the schema. A retention of zero
// keeps every snapshot.
func Open(driver, dsn string, retention time.Duration) (*Store, error) {
	dialector, err := dialect(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s history: %w", driver, err)
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	log.Info("snapshot history enabled, driver %s, retention %s", driver, retention)
	return &Store{db: db, retention: retention}, nil
}

func dialect(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = "healthd.db"
		}
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		cfg, err := mysqldriver.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		if cfg.DBName == "" {
			return nil, errors.New("mysql dsn must name a database")
		}
		cfg.ParseTime = true
		return gormmysql.Open(cfg.FormatDSN()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// Record stores s and drops rows that fell out of the retention window.
func (s *Store) Record(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snap.ID, err)
	}

	db := s.db.WithContext(ctx)
	row := record{ID: snap.ID, GeneratedAt: snap.GeneratedAt.UnixMilli(), Payload: string(payload)}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}

	if s.retention > 0 {
		cutoff := snap.GeneratedAt.Add(-s.retention).UnixMilli()
		res := db.Where("generated_at < ?", cutoff).Delete(&record{})
		if res.Error != nil {
			return fmt.Errorf("prune history: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			log.Debug("pruned %d snapshot(s) older than %s", res.RowsAffected, s.retention)
		}
	}
	return nil
}

// List returns up to limit snapshots generated at or after since, oldest
// first.
func (s *Store) List(ctx context.Context, since time.Time, limit int) ([]snapshot.Snapshot, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	var rows []record
	err := s.db.WithContext(ctx).
		Where("generated_at >= ?", since.UnixMilli()).
		Order("generated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]snapshot.Snapshot, 0, len(rows))
	for _, row := range rows {
		var snap snapshot.Snapshot
		if err := json.Unmarshal([]byte(row.Payload), &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", row.ID, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&record{}).Count(&n).Error
	return n, err
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
