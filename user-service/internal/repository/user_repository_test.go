package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/receiptmaster/backend/shared/models"
)

var userRowColumns = []string{
	"id", "username", "email", "password", "phone_number", "profile_picture", "creation_date", "update_date",
}

const testDate = "2024-05-01T10:00:00.000000Z"

func newWriteRepoWithMock(t *testing.T) (*UserWriteRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewUserWriteRepository(db), mock, db
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users\s*\(username,.*RETURNING\s+id`).
		WithArgs("alice", "a@x.com", "p", nil, nil, testDate, testDate).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	got, err := repo.Insert(context.Background(), &models.User{
		Username: "alice", Email: "a@x.com", Password: "p", CreationDate: testDate, UpdateDate: testDate,
	})
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got.ID != 1 || got.Username != "alice" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_UniqueViolation(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Insert(context.Background(), &models.User{Username: "alice"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("want ErrDuplicateUsername, got %v", err)
	}
}

func TestInsert_DBError(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Insert(context.Background(), &models.User{Username: "alice"})
	if err == nil || !regexp.MustCompile(`failed to create user: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByUsername_Found(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*username.*FROM\s+users\s+WHERE\s+username\s*=\s*\$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "a@x.com", "p", "555", nil, testDate, testDate))

	got, err := repo.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername error: %v", err)
	}
	if got.ID != 1 || got.PhoneNumber == nil || *got.PhoneNumber != "555" || got.ProfilePicture != nil {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestFindByUsername_NotFound(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+username`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	const updated = "2024-05-02T09:00:00.000000Z"
	mock.ExpectQuery(`(?s)UPDATE\s+users\s+SET\s+username\s*=\s*\$2.*WHERE\s+id\s*=\s*\$1\s+RETURNING`).
		WithArgs(int64(1), "alice2", "a2@x.com", "p2", nil, nil, updated).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice2", "a2@x.com", "p2", nil, nil, testDate, updated))

	got, err := repo.Update(context.Background(), 1, models.UserFields{
		Username: "alice2", Email: "a2@x.com", Password: "p2",
	}, updated)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.ID != 1 || got.Username != "alice2" || got.CreationDate != testDate || got.UpdateDate != updated {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+users`).WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.Update(context.Background(), 42, models.UserFields{Username: "x"}, testDate)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdate_UniqueViolation(t *testing.T) {
	repo, mock, db := newWriteRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+users`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Update(context.Background(), 2, models.UserFields{Username: "alice"}, testDate)
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("want ErrDuplicateUsername, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		execErr  error
		check    func(error) bool
	}{
		{"deleted", 1, nil, func(err error) bool { return err == nil }},
		{"missing row", 0, nil, func(err error) bool { return errors.Is(err, ErrNotFound) }},
		{"db error", 0, errors.New("db down"), func(err error) bool {
			return err != nil && !errors.Is(err, ErrNotFound)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, db := newWriteRepoWithMock(t)
			defer db.Close()

			exp := mock.ExpectExec(`DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).WithArgs(int64(3))
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, tt.affected))
			}

			if err := repo.Delete(context.Background(), 3); !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
