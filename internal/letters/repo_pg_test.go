package letters

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func expectSnapshot(mock sqlmock.Sqlmock, batchID string, forUpdate, completed bool, statuses []string, letters int) {
	lock := "SELECT import_completed FROM import_batches WHERE id = \\$1$"
	if forUpdate {
		lock = "SELECT import_completed FROM import_batches WHERE id = \\$1 FOR UPDATE"
	}
	mock.ExpectQuery(lock).WithArgs(batchID).
		WillReturnRows(sqlmock.NewRows([]string{"import_completed"}).AddRow(completed))
	rows := sqlmock.NewRows([]string{"status"})
	for _, s := range statuses {
		rows.AddRow(s)
	}
	mock.ExpectQuery("SELECT status FROM import_lines WHERE batch_id = \\$1 ORDER BY seq").WithArgs(batchID).WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM letters WHERE batch_id = \\$1").WithArgs(batchID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(letters))
}

func TestPGRepoCreateBatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO import_batches").
		WithArgs("b1", "christmas", "tpl", "draft", "op-1", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateBatch(context.Background(), Batch{ID: "b1", ConfigID: "christmas", TemplateID: "tpl", CreatedBy: "op-1", CreatedAt: now})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateBatchWithoutConfigStoresNull(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO import_batches").
		WithArgs("b1", nil, "", "draft", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.CreateBatch(context.Background(), Batch{ID: "b1", CreatedAt: now}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoCreateBatchMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO import_batches").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "import_batches_open_config_idx"})

	err := repo.CreateBatch(context.Background(), Batch{ID: "b2", ConfigID: "christmas", CreatedAt: time.Now()})
	if !errors.Is(err, ErrImportAlreadyOpen) {
		t.Fatalf("expected ErrImportAlreadyOpen, got %v", err)
	}
}

func TestPGRepoGetBatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"id", "config_id", "template_id", "state", "import_completed", "created_by", "created_at", "updated_at", "completed_at"}).
		AddRow("b1", nil, "tpl", "ready", true, "op-1", now, now, now)
	mock.ExpectQuery("SELECT id, config_id, .* FROM import_batches WHERE id = \\$1").WithArgs("b1").WillReturnRows(rows)

	b, err := repo.GetBatch(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if b.ConfigID != "" || b.State != StateReady || !b.ImportCompleted || b.CompletedAt == nil {
		t.Fatalf("unexpected batch %+v", b)
	}
}

func TestPGRepoGetBatchNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT id, config_id, .* FROM import_batches").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetBatch(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGRepoAppendLineCommitsAndRefreshesState(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	partner := int64(7)
	line := Line{
		ID: "l1", BatchID: "b1", PartnerID: &partner, PartnerCode: "1234", ChildCode: "UG1",
		TemplateID: "tpl", Status: LineStatusOK, FileName: "a.pdf", DocumentKey: "imports/b1/l1.pdf",
		PreviewKey: "imports/b1/l1.jpg", CreatedAt: now,
	}

	mock.ExpectBegin()
	expectSnapshot(mock, "b1", true, false, nil, 0)
	mock.ExpectExec("INSERT INTO import_lines").
		WithArgs("l1", "b1", int64(7), nil, "1234", "UG1", "tpl", "ok", "a.pdf", "imports/b1/l1.pdf", "imports/b1/l1.jpg", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	expectSnapshot(mock, "b1", false, false, []string{"ok"}, 0)
	mock.ExpectExec("UPDATE import_batches SET state = \\$1").WithArgs("pending", "b1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.AppendLine(context.Background(), line); err != nil {
		t.Fatalf("AppendLine: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoAppendLineRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectSnapshot(mock, "b1", true, false, nil, 0)
	mock.ExpectExec("INSERT INTO import_lines").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := repo.AppendLine(context.Background(), Line{ID: "l1", BatchID: "b1"}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoMarkImportCompleted(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectSnapshot(mock, "b1", true, false, []string{"ok", "ok"}, 0)
	mock.ExpectExec("UPDATE import_batches SET import_completed = TRUE").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "b1", false, true, []string{"ok", "ok"}, 0)
	mock.ExpectExec("UPDATE import_batches SET state = \\$1").WithArgs("ready", "b1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.MarkImportCompleted(context.Background(), "b1"); err != nil {
		t.Fatalf("MarkImportCompleted: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoPromoteLinesRejectsOpenBatch(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	expectSnapshot(mock, "b1", true, true, []string{"ok", "no_child"}, 0)
	mock.ExpectRollback()

	_, err := repo.PromoteLines(context.Background(), "b1", func(lines []Line) []Letter {
		t.Fatalf("build must not run")
		return nil
	})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoPromoteLines(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	expectSnapshot(mock, "b1", true, true, []string{"ok"}, 0)
	mock.ExpectQuery("SELECT id, batch_id, partner_id, .* FROM import_lines WHERE batch_id = \\$1 ORDER BY seq").
		WithArgs("b1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "batch_id", "partner_id", "child_id", "partner_code", "child_code", "template_id", "status", "file_name", "document_key", "preview_key", "created_at"}).
			AddRow("l1", "b1", 7, nil, "1234", "X", "tpl", "ok", "a.pdf", "imports/b1/l1.pdf", "", now))
	mock.ExpectExec("INSERT INTO letters").
		WithArgs("letter-1", "b1", int64(7), nil, "tpl", "a.pdf", "imports/b1/l1.pdf", "", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM import_lines WHERE batch_id = \\$1").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 1))
	expectSnapshot(mock, "b1", false, true, nil, 1)
	mock.ExpectExec("UPDATE import_batches SET state = \\$1").WithArgs("done", "b1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.PromoteLines(context.Background(), "b1", func(lines []Line) []Letter {
		if len(lines) != 1 || lines[0].ChildID != nil || *lines[0].PartnerID != 7 {
			t.Fatalf("unexpected lines %+v", lines)
		}
		return []Letter{{
			ID: "letter-1", BatchID: "b1", PartnerID: lines[0].PartnerID, TemplateID: lines[0].TemplateID,
			FileName: lines[0].FileName, DocumentKey: lines[0].DocumentKey, CreatedAt: now,
		}}
	})
	if err != nil {
		t.Fatalf("PromoteLines: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected one letter, got %d", len(created))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoDeleteBatchNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("DELETE FROM import_batches WHERE id = \\$1").WithArgs("nope").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteBatch(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
