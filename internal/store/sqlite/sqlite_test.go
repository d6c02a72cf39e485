package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/danmuck/wireconv/internal/protocol/schema"
	"github.com/danmuck/wireconv/internal/store"
	"github.com/danmuck/wireconv/internal/testutil/testlog"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "schemas.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func loanSpecs() ([]schema.FieldSpec, []schema.ChildFieldSpec) {
	specs := []schema.FieldSpec{
		{TypeCode: "SDL_101", Order: 3, Name: "Loans", Kind: schema.KindArray, Group: "body"},
		{TypeCode: "SDL_101", Order: 1, Name: "MsgLen", Length: 6, Kind: schema.KindNumber},
		{TypeCode: "SDL_101", Order: 2, Name: "LoansCNT", Length: 2, Kind: schema.KindNumber, Group: "body"},
	}
	children := []schema.ChildFieldSpec{
		{FieldSpec: schema.FieldSpec{TypeCode: "SDL_101", Order: 2, Name: "Rate", Length: 3, Kind: schema.KindNumber}, Parent: "Loans"},
		{FieldSpec: schema.FieldSpec{TypeCode: "SDL_101", Order: 1, Name: "Amt", Length: 4, Kind: schema.KindText}, Parent: "Loans"},
	}
	return specs, children
}

func TestStoreRoundTripOrdered(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	specs, children := loanSpecs()
	if err := s.Replace(ctx, specs, children); err != nil {
		t.Fatalf("replace: %v", err)
	}

	top, err := s.TopLevelSpecs(ctx)
	if err != nil {
		t.Fatalf("top-level: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(top))
	}
	for i, want := range []string{"MsgLen", "LoansCNT", "Loans"} {
		if top[i].Name != want {
			t.Fatalf("spec %d: expected %s, got %s", i, want, top[i].Name)
		}
	}
	if top[2].Kind != schema.KindArray || top[2].Length != 0 || top[2].Group != "body" {
		t.Fatalf("array spec mismatch: %+v", top[2])
	}
	if top[0].Group != "" {
		t.Fatalf("expected null group to read back empty, got %q", top[0].Group)
	}

	kids, err := s.ChildSpecs(ctx)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(kids) != 2 || kids[0].Name != "Amt" || kids[1].Name != "Rate" {
		t.Fatalf("child order mismatch: %+v", kids)
	}
	if kids[0].Parent != "Loans" || kids[0].Kind != schema.KindText {
		t.Fatalf("child mismatch: %+v", kids[0])
	}
}

func TestStoreReplaceOnlyTouchesGivenCodes(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	specs, children := loanSpecs()
	if err := s.Replace(ctx, specs, children); err != nil {
		t.Fatalf("replace: %v", err)
	}
	other := []schema.FieldSpec{{TypeCode: "SDL_202", Order: 1, Name: "Id", Length: 4, Kind: schema.KindText}}
	if err := s.Replace(ctx, other, nil); err != nil {
		t.Fatalf("replace other: %v", err)
	}
	again := []schema.FieldSpec{{TypeCode: "SDL_101", Order: 1, Name: "MsgLen", Length: 6, Kind: schema.KindNumber}}
	if err := s.Replace(ctx, again, nil); err != nil {
		t.Fatalf("replace again: %v", err)
	}

	top, err := s.TopLevelSpecs(ctx)
	if err != nil {
		t.Fatalf("top-level: %v", err)
	}
	if len(top) != 2 || top[0].TypeCode != "SDL_101" || top[1].TypeCode != "SDL_202" {
		t.Fatalf("unexpected rows after replace: %+v", top)
	}
	kids, err := s.ChildSpecs(ctx)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(kids) != 0 {
		t.Fatalf("expected SDL_101 children to be cleared, got %+v", kids)
	}
}

func TestStoreRejectsUnknownKindRow(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_field_spec (api_code, field_order, field_name, field_length, field_type)
		VALUES ('SDL_101', 1, 'Bad', 3, 'Z')`)
	if err != nil {
		t.Fatalf("insert row: %v", err)
	}
	if _, err := s.TopLevelSpecs(ctx); !errors.Is(err, schema.ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestStoreNullLengthReadsZero(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_field_spec (api_code, field_order, field_name, field_length, field_type, group_name)
		VALUES ('SDL_101', 1, 'Body', NULL, 'O', NULL)`)
	if err != nil {
		t.Fatalf("insert row: %v", err)
	}
	top, err := s.TopLevelSpecs(ctx)
	if err != nil {
		t.Fatalf("top-level: %v", err)
	}
	if len(top) != 1 || top[0].Length != 0 || top[0].Kind != schema.KindObject {
		t.Fatalf("unexpected spec: %+v", top)
	}
}

func TestStoreFeedsRegistry(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	specs, children := loanSpecs()
	if err := s.Replace(ctx, specs, children); err != nil {
		t.Fatalf("replace: %v", err)
	}
	reg := schema.NewRegistry()
	if err := store.Load(ctx, s, reg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := reg.Index().ChildrenOf("SDL_101", "Loans"); len(got) != 2 {
		t.Fatalf("expected 2 children in index, got %d", len(got))
	}
}

func TestNewRequiresMigrate(t *testing.T) {
	testlog.Start(t)
	db, err := sql.Open(DriverName, ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	defer db.Close()
	s := New(db)
	if _, err := s.TopLevelSpecs(context.Background()); err == nil {
		t.Fatalf("expected query against missing table to fail")
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate twice: %v", err)
	}
	top, err := s.TopLevelSpecs(context.Background())
	if err != nil || len(top) != 0 {
		t.Fatalf("expected empty store, got %+v err=%v", top, err)
	}
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("expected empty path to fail")
	}
}
