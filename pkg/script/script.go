// Package script runs ordered SQL files through a dal Session.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/TechXTT/dal"
)

// Script is one NNNN_name.sql file.
type Script struct {
	Seq  int
	Name string
	SQL  string
}

// Runner executes a directory of scripts in sequence order
type Runner struct {
	session *dal.Session
	dir     string
	scripts []Script
	logger  *zap.Logger
}

var fileName = regexp.MustCompile(`^(\d+)_(.+)\.sql$`)

// NewRunner loads the scripts found in dir
func NewRunner(session *dal.Session, dir string, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{session: session, dir: dir, logger: logger}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load reads NNNN_name.sql files and orders them by sequence number
func (r *Runner) load() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read scripts dir: %w", err)
	}
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := fileName.FindStringSubmatch(e.Name())
		if len(m) != 3 {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			return fmt.Errorf("parse sequence of %s: %w", e.Name(), err)
		}
		if prev, dup := seen[seq]; dup {
			return fmt.Errorf("duplicate sequence %d: %s and %s", seq, prev, e.Name())
		}
		seen[seq] = e.Name()

		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		r.scripts = append(r.scripts, Script{Seq: seq, Name: m[2], SQL: string(data)})
	}
	sort.Slice(r.scripts, func(i, j int) bool { return r.scripts[i].Seq < r.scripts[j].Seq })
	return nil
}

// Scripts returns the loaded scripts in execution order.
func (r *Runner) Scripts() []Script {
	return append([]Script(nil), r.scripts...)
}

// Run executes every script inside one transaction. The first failure rolls
// the whole run back.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.scripts) == 0 {
		r.logger.Info("no scripts to run", zap.String("dir", r.dir))
		return nil
	}
	return r.session.InTransaction(ctx, func(tx *dal.Tx) error {
		for _, sc := range r.scripts {
			r.logger.Info("running script", zap.Int("seq", sc.Seq), zap.String("name", sc.Name))
			if err := r.session.Exec(ctx, dal.Stmt(sc.SQL).In(tx)); err != nil {
				return fmt.Errorf("script %04d_%s: %w", sc.Seq, sc.Name, err)
			}
		}
		return nil
	})
}
