package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgres_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS audit_records`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewPostgres(db).EnsureSchema(context.Background()); err != nil {
		t.Errorf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgres_Publish(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		msg         Message
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			msg:  Message{RoutingKey: RouteOrders, ID: "o1", ParentID: "e1", Body: []byte(`{"id":"o1"}`), Timestamp: ts},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO audit_records`).
					WithArgs("o1", RouteOrders, "e1", `{"id":"o1"}`, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "duplicate is ignored",
			msg:  Message{RoutingKey: RouteOrders, ID: "o1", ParentID: "e1", Body: []byte(`{}`), Timestamp: ts},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO audit_records .* ON CONFLICT \(id\) DO NOTHING`).
					WithArgs("o1", RouteOrders, "e1", `{}`, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
		},
		{
			name: "database error",
			msg:  Message{RoutingKey: RouteDisbalances, ID: "d1", Body: []byte(`{}`)},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO audit_records`).
					WithArgs("d1", RouteDisbalances, "", `{}`, sqlmock.AnyArg()).
					WillReturnError(errors.New("database error"))
			},
			expectError: true,
		},
		{
			name:        "missing id",
			msg:         Message{RoutingKey: RouteOrders, Body: []byte(`{}`)},
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			conn, err := NewPostgres(db).Dial(context.Background())
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer conn.Close()

			err = conn.Publish(context.Background(), tt.msg)
			if (err != nil) != tt.expectError {
				t.Errorf("Publish() error = %v, expectError %v", err, tt.expectError)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
