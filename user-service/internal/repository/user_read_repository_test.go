package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/receiptmaster/backend/shared/models"
	goredis "github.com/redis/go-redis/v9"
)

func newReadRepo(t *testing.T, withCache bool) (*UserReadRepository, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if !withCache {
		return NewUserReadRepository(db, nil, 0), mock, nil
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewUserReadRepository(db, client, 0), mock, mr
}

func expectSelectByID(mock sqlmock.Sqlmock, id int64, username string) {
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(id, username, "a@x.com", "p", nil, nil, testDate, testDate))
}

func TestFindByID_WarmsCacheOnMiss(t *testing.T) {
	repo, mock, mr := newReadRepo(t, true)
	ctx := context.Background()

	expectSelectByID(mock, 1, "alice")

	first, err := repo.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if !mr.Exists("user:1") {
		t.Fatalf("expected user:1 to be cached")
	}

	// No second query is expected: the cache answers.
	second, err := repo.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID (cached) error: %v", err)
	}
	if *first != *second {
		t.Fatalf("cached user differs: %+v vs %+v", first, second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByID_InvalidateForcesReload(t *testing.T) {
	repo, mock, mr := newReadRepo(t, true)
	ctx := context.Background()

	repo.CacheUser(ctx, &models.User{ID: 7, Username: "cached", UpdateDate: testDate})
	repo.InvalidateUser(ctx, 7)
	if mr.HGet("user:7", "data") != "" {
		t.Fatalf("expected user:7 to be evicted")
	}

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(userRowColumns))

	_, err := repo.FindByID(ctx, 7)
	if err != ErrNotFound {
		t.Fatalf("want ErrNotFound after eviction, got %v", err)
	}
}

func TestFindByID_UndecodableCacheEntryFallsBack(t *testing.T) {
	repo, mock, mr := newReadRepo(t, true)
	ctx := context.Background()

	mr.HSet("user:1", "version", testDate)
	mr.HSet("user:1", "data", "{not json")
	expectSelectByID(mock, 1, "alice")

	got, err := repo.FindByID(ctx, 1)
	if err != nil || got.Username != "alice" {
		t.Fatalf("expected database fallback, got %+v, %v", got, err)
	}
}

func TestFindByID_WithoutCache(t *testing.T) {
	repo, mock, _ := newReadRepo(t, false)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs(int64(9)).WillReturnError(sql.ErrConnDone)

	_, err := repo.FindByID(context.Background(), 9)
	if err == nil || err == ErrNotFound {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindAll(t *testing.T) {
	repo, mock, _ := newReadRepo(t, false)

	mock.ExpectQuery(`FROM\s+users\s+ORDER\s+BY\s+id`).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "a@x.com", "p", nil, nil, testDate, testDate).
			AddRow(int64(2), "bob", "b@x.com", "q", "555", "pic.png", testDate, testDate))

	users, err := repo.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("unexpected users: %+v", users)
	}
	if users[1].ProfilePicture == nil || *users[1].ProfilePicture != "pic.png" {
		t.Fatalf("expected profile picture to be scanned, got %+v", users[1])
	}
}

func TestFindAll_Empty(t *testing.T) {
	repo, mock, _ := newReadRepo(t, false)

	mock.ExpectQuery(`FROM\s+users\s+ORDER\s+BY\s+id`).WillReturnRows(sqlmock.NewRows(userRowColumns))

	users, err := repo.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll error: %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", users)
	}
}

func TestFindByID_LateFillAfterDeleteIsDiscarded(t *testing.T) {
	repo, mock, mr := newReadRepo(t, true)
	ctx := context.Background()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "a@x.com", "p", nil, nil, testDate, testDate))

	readDone := make(chan error, 1)
	go func() {
		_, err := repo.FindByID(ctx, 1)
		readDone <- err
	}()

	// The row is deleted while the read is still in flight.
	time.Sleep(50 * time.Millisecond)
	repo.InvalidateUser(ctx, 1)

	if err := <-readDone; err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if mr.HGet("user:1", "data") != "" {
		t.Fatalf("deleted user was written back to the cache")
	}

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows(userRowColumns))

	if _, err := repo.FindByID(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByID_LateFillDoesNotRollBackUpdate(t *testing.T) {
	repo, mock, _ := newReadRepo(t, true)
	ctx := context.Background()

	const updated = "2024-05-02T09:00:00.000000Z"
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).
		WithArgs(int64(1)).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(int64(1), "alice", "old@x.com", "p", nil, nil, testDate, testDate))

	readDone := make(chan error, 1)
	go func() {
		_, err := repo.FindByID(ctx, 1)
		readDone <- err
	}()

	time.Sleep(50 * time.Millisecond)
	repo.CacheUser(ctx, &models.User{
		ID: 1, Username: "alice", Email: "new@x.com", Password: "p", CreationDate: testDate, UpdateDate: updated,
	})

	if err := <-readDone; err != nil {
		t.Fatalf("FindByID error: %v", err)
	}

	got, err := repo.FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByID (cached) error: %v", err)
	}
	if got.Email != "new@x.com" || got.UpdateDate != updated {
		t.Fatalf("cache rolled back to a stale copy: %+v", got)
	}
}
