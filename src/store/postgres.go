// Copyright 2021 Ilia Frenkel. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE.txt file.

package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// PostgresDB is a Postgres SQL database storage that implements the
// store.Interface.
type PostgresDB struct {
	db *gorm.DB
}

// Fail if the struct does not match the Interface.
var _ = Interface(&PostgresDB{})

// NewPostgresDB initialises a new instance of PostgresDB and returns.
// It tries to establish a database connection specified by conn and if
// autoMigrate is true it will try and create/alter all the tables.
func NewPostgresDB(conn string, autoMigrate bool) (*PostgresDB, error) {
	var pg PostgresDB
	db, err := gorm.Open(postgres.Open(conn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("NewPostgresDB: failed to establish database connection: %w", err)
	}
	if autoMigrate {
		err = db.AutoMigrate(&User{}, &Paste{})
	} else {
		if d, e := db.DB(); e == nil {
			err = d.Ping()
		} else {
			err = e
		}
	}

	if err != nil {
		return nil, fmt.Errorf("NewPostgresDB: %w", err)
	}

	pg.db = db

	return &pg, nil
}

// Totals returns total count of pastes and users.
func (pg *PostgresDB) Totals(ctx context.Context) (pastes, users int64, err error) {
	if err = pg.db.WithContext(ctx).Model(&Paste{}).Count(&pastes).Error; err != nil {
		return 0, 0, fmt.Errorf("PostgresDB.Totals: %w", err)
	}
	if err = pg.db.WithContext(ctx).Model(&User{}).Count(&users).Error; err != nil {
		return 0, 0, fmt.Errorf("PostgresDB.Totals: %w", err)
	}
	return pastes, users, nil
}

// Create stores a new paste.
func (pg *PostgresDB) Create(ctx context.Context, p Paste) (Paste, error) {
	if p.ID == "" || p.UserID == "" {
		return Paste{}, fmt.Errorf("PostgresDB.Create: %w", ErrNoID)
	}
	if err := pg.db.WithContext(ctx).Create(&p).Error; err != nil {
		return Paste{}, fmt.Errorf("PostgresDB.Create: %w", err)
	}
	return p, nil
}

// Get returns a paste by ID if it belongs to the owner.
func (pg *PostgresDB) Get(ctx context.Context, id, owner string) (Paste, error) {
	var paste Paste
	tx := pg.db.WithContext(ctx).Limit(1).Find(&paste, "id = ? AND user_id = ?", id, owner)
	if tx.Error != nil {
		return Paste{}, fmt.Errorf("PostgresDB.Get: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return Paste{}, fmt.Errorf("PostgresDB.Get: %w", ErrNotFound)
	}

	return paste, nil
}

// Update saves every column of the paste. The row is matched by both ID and
// UserID so a paste can never change hands.
func (pg *PostgresDB) Update(ctx context.Context, p Paste) (Paste, error) {
	tx := pg.db.WithContext(ctx).
		Model(&Paste{}).
		Where("id = ? AND user_id = ?", p.ID, p.UserID).
		Select("title", "content", "tag", "content_type", "language", "updated_at").
		Updates(&p)
	if tx.Error != nil {
		return Paste{}, fmt.Errorf("PostgresDB.Update: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return Paste{}, fmt.Errorf("PostgresDB.Update: %w", ErrNotFound)
	}

	return pg.Get(ctx, p.ID, p.UserID)
}

// Delete deletes a paste by ID if it belongs to the owner.
func (pg *PostgresDB) Delete(ctx context.Context, id, owner string) error {
	if id == "" {
		return fmt.Errorf("PostgresDB.Delete: %w", ErrNotFound)
	}
	tx := pg.db.WithContext(ctx).Where("user_id = ?", owner).Delete(&Paste{ID: id})
	if tx.Error != nil {
		return fmt.Errorf("PostgresDB.Delete: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("PostgresDB.Delete: %w", ErrNotFound)
	}

	return nil
}

// Find return a sorted list of pastes for a given request.
func (pg *PostgresDB) Find(ctx context.Context, req FindRequest) (pastes []Paste, err error) {
	column, desc := orderBy(req.Sort)

	q := pg.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order("id").
		Offset(req.Skip)
	if req.Limit > 0 {
		q = q.Limit(req.Limit)
	}

	pastes = []Paste{}
	if err = q.Find(&pastes, "user_id = ?", req.UserID).Error; err != nil {
		return pastes, fmt.Errorf("PostgresDB.Find: %w", err)
	}
	return pastes, nil
}

// Count returns the number of pastes that belong to req.UserID.
func (pg *PostgresDB) Count(ctx context.Context, req FindRequest) (pastes int64, err error) {
	err = pg.db.WithContext(ctx).Model(&Paste{}).Where("user_id = ?", req.UserID).Count(&pastes).Error
	if err != nil {
		return 0, fmt.Errorf("PostgresDB.Count: %w", err)
	}
	return pastes, nil
}

// SaveUser creates a new or updates an existing user.
func (pg *PostgresDB) SaveUser(ctx context.Context, usr User) (id string, err error) {
	if usr.ID == "" {
		return "", fmt.Errorf("PostgresDB.SaveUser: %w", ErrNoUserID)
	}
	err = pg.db.WithContext(ctx).Clauses(clause.OnConflict{
		UpdateAll: true,
	}).Create(&usr).Error
	if err != nil {
		return "", fmt.Errorf("PostgresDB.SaveUser: %w", err)
	}
	return usr.ID, nil
}

// CreateUser inserts a new user, it fails with ErrUserExists if the ID is
// already taken.
func (pg *PostgresDB) CreateUser(ctx context.Context, usr User) error {
	if usr.ID == "" {
		return fmt.Errorf("PostgresDB.CreateUser: %w", ErrNoUserID)
	}
	res := pg.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&usr)
	if res.Error != nil {
		return fmt.Errorf("PostgresDB.CreateUser: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("PostgresDB.CreateUser: %w", ErrUserExists)
	}
	return nil
}

// User returns a user by ID.
func (pg *PostgresDB) User(ctx context.Context, id string) (User, error) {
	var usr User
	err := pg.db.WithContext(ctx).Take(&usr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("PostgresDB.User: %w", ErrUserNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("PostgresDB.User: %w", err)
	}

	return usr, nil
}

// Close closes the underlying connection pool.
func (pg *PostgresDB) Close() error {
	d, err := pg.db.DB()
	if err != nil {
		return fmt.Errorf("PostgresDB.Close: %w", err)
	}
	return d.Close()
}
