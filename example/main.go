package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/TechXTT/dal"
	"github.com/TechXTT/dal/internal/logger"
	"github.com/TechXTT/dal/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS brands (
    id              serial PRIMARY KEY,
    name            text NOT NULL UNIQUE,
    deleted_at      timestamptz,
    deleted_by_id   uuid,
    deleted_by_name text
);
CREATE TABLE IF NOT EXISTS models (
    id              serial PRIMARY KEY,
    brand_id        int NOT NULL REFERENCES brands(id),
    name            text NOT NULL,
    deleted_at      timestamptz,
    deleted_by_id   uuid,
    deleted_by_name text
);`

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts ...dal.Option) error {
	// 1) Load config (.env, DAL_* variables, DATABASE_URL) and connect
	cfg, err := config.Load(os.Getenv("DAL_CONFIG"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	s, err := dal.Open(ctx, cfg, append([]dal.Option{dal.WithLogger(log)}, opts...)...)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer s.Close()

	if err := s.Exec(ctx, dal.Stmt(schema)); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	// Start every run from empty tables
	if err := s.Exec(ctx, dal.Stmt(`TRUNCATE models, brands RESTART IDENTITY`)); err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}

	// 2) A brand and three models, then an insert missing the model name
	tx, err := s.StartTransaction(ctx)
	if err != nil {
		return err
	}
	brand, err := s.Insert(ctx, dal.Stmt(`INSERT INTO brands (name) VALUES ($1) RETURNING id`, "Audi").In(tx))
	if err != nil {
		_ = s.Rollback(ctx, tx)
		return err
	}
	for _, name := range []string{"A3", "A4", "Q5"} {
		if _, err := s.Insert(ctx, dal.Stmt(`INSERT INTO models (brand_id, name) VALUES ($1, $2)`, brand.ID, name).In(tx)); err != nil {
			_ = s.Rollback(ctx, tx)
			return err
		}
	}
	_, err = s.Insert(ctx, dal.Stmt(`INSERT INTO models (brand_id, name) VALUES ($1, $2)`, brand.ID).In(tx))
	if !errors.Is(err, dal.ErrStatement) {
		_ = s.Rollback(ctx, tx)
		return fmt.Errorf("expected a statement error, got %v", err)
	}
	fmt.Printf("✅ Malformed insert rejected: %v\n", err)
	if err := s.Rollback(ctx, tx); err != nil {
		return err
	}

	if _, ok, err := s.QueryRow(ctx, dal.Stmt(`SELECT id, name FROM brands WHERE id = $1`, brand.ID)); err != nil {
		return err
	} else if !ok {
		fmt.Printf("✅ Brand %v is gone after rollback\n", brand.ID)
	}

	// 3) The same work, committed this time
	err = s.InTransaction(ctx, func(tx *dal.Tx) error {
		brand, err = s.Insert(ctx, dal.Stmt(`INSERT INTO brands (name) VALUES ($1) RETURNING id`, "Audi").In(tx))
		if err != nil {
			return err
		}
		for _, name := range []string{"A3", "A4", "Q5"} {
			if _, err := s.Insert(ctx, dal.Stmt(`INSERT INTO models (brand_id, name) VALUES ($1, $2)`, brand.ID, name).In(tx)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Created brand %v with three models\n", brand.ID)

	// 4) Soft delete one model, recording who did it
	res, err := s.Delete(ctx, dal.Stmt(`DELETE FROM models WHERE brand_id = $1 AND name = $2`, brand.ID, "A4"), dal.DeleteOptions{
		SoftDelete: dal.Soft(true),
		UserID:     uuid.New(),
		UserName:   "demo",
	})
	if err != nil {
		return err
	}
	fmt.Printf("✅ Soft-deleted %d model(s)\n", res.RowsDeleted)

	rows, err := s.QueryRows(ctx, dal.Stmt(`SELECT name, deleted_by_name FROM models WHERE brand_id = $1 ORDER BY name`, brand.ID))
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("   %v (deleted by: %v)\n", row["name"], row["deleted_by_name"])
	}
	return nil
}
