package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path         string `split_words:"true" default:"./database/ecommerce.db"`
	ReadOnly     bool   `split_words:"true" default:"true"`
	BusyTimeout  int    `split_words:"true" default:"5000"`
	MaxOpenConns int    `split_words:"true" default:"4"`
}

// DSN builds a modernc.org/sqlite connection string.
func (c *Config) DSN() string {
	q := url.Values{}
	if c.ReadOnly {
		q.Set("mode", "ro")
	}
	if c.BusyTimeout > 0 {
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout))
	}
	if len(q) == 0 {
		return "file:" + c.Path
	}
	return "file:" + c.Path + "?" + q.Encode()
}

func (c *Config) New() (*sql.DB, error) {
	db, err := sql.Open("sqlite", c.DSN())
	if err != nil {
		return nil, err
	}
	if c.MaxOpenConns > 0 {
		db.SetMaxOpenConns(c.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (c *Config) MustNew() *sql.DB {
	db, err := c.New()
	if err != nil {
		panic(err)
	}

	return db
}
