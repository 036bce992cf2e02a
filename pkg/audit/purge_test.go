package audit

import (
	"context"
	"errors"
	"io"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/nextsuite/authcore/pkg/observability"
)

func TestPurgerRunOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sink, _ := NewDBSink(db, nil)
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	purger := NewPurger(sink, 90, "0 3 * * *", logger)

	mock.ExpectExec("DELETE FROM audit_events").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := purger.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPurgerRunOncePropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sink, _ := NewDBSink(db, nil)
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	purger := NewPurger(sink, 90, "0 3 * * *", logger)

	mock.ExpectExec("DELETE FROM audit_events").
		WillReturnError(errors.New("deadlock detected"))

	if err := purger.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPurgerRejectsBadSchedule(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	sink, _ := NewDBSink(db, nil)
	logger := observability.NewLogger(observability.InfoLevel, io.Discard)
	purger := NewPurger(sink, 90, "not a schedule", logger)

	if err := purger.Start(); err == nil {
		purger.Stop()
		t.Fatal("expected schedule parse error")
	}
}
