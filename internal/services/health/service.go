package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Status is the health payload.
type Status struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

// Service reports whether the API can reach its dependencies.
type Service struct {
	DB           *sql.DB
	QueueBackend string
}

// NewService constructs a new health service. db may be nil when running on
// in-memory repositories.
func NewService(db *sql.DB, queueBackend string) *Service {
	return &Service{DB: db, QueueBackend: queueBackend}
}

// Status pings the database and reports the configured queue backend.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{OK: true, Database: "memory", Queue: s.QueueBackend}
	if st.Queue == "" {
		st.Queue = "none"
	}
	if s.DB == nil {
		return st
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		st.OK = false
		st.Database = "down"
		return st
	}
	st.Database = "up"
	return st
}
