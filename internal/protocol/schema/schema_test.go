package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/wireconv/internal/testutil/testlog"
)

func loanSpecs() ([]FieldSpec, []ChildFieldSpec) {
	specs := []FieldSpec{
		{TypeCode: "SDL_101", Order: 30, Name: "Loans", Kind: KindArray},
		{TypeCode: "SDL_101", Order: 10, Name: "MsgLen", Length: 6, Kind: KindNumber},
		{TypeCode: "SDL_101", Order: 20, Name: "LoansCNT", Length: 2, Kind: KindNumber},
		{TypeCode: "QSD_501", Order: 0, Name: "Header", Kind: KindObject},
	}
	children := []ChildFieldSpec{
		{FieldSpec: FieldSpec{TypeCode: "SDL_101", Order: 2, Name: "Date", Length: 8, Kind: KindText}, Parent: "Loans"},
		{FieldSpec: FieldSpec{TypeCode: "SDL_101", Order: 1, Name: "Amt", Length: 4, Kind: KindText}, Parent: "Loans"},
	}
	return specs, children
}

func TestParseKindCodes(t *testing.T) {
	testlog.Start(t)
	cases := map[string]FieldKind{"O": KindObject, "A": KindArray, "N": KindNumber, "C": KindText}
	for code, want := range cases {
		got, err := ParseKind(code)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %v, %v; want %v", code, got, err, want)
		}
		if got.Code() != code {
			t.Fatalf("round trip code %q -> %q", code, got.Code())
		}
	}
	if _, err := ParseKind("X"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if FieldKind(9).Valid() {
		t.Fatalf("expected out-of-range kind to be invalid")
	}
}

func TestNewIndexSortsByOrder(t *testing.T) {
	testlog.Start(t)
	specs, children := loanSpecs()
	ix, err := NewIndex(specs, children)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}

	top := ix.SpecsFor("SDL_101")
	if len(top) != 3 {
		t.Fatalf("expected 3 top-level specs, got %d", len(top))
	}
	if top[0].Name != "MsgLen" || top[1].Name != "LoansCNT" || top[2].Name != "Loans" {
		t.Fatalf("unexpected order: %s %s %s", top[0].Name, top[1].Name, top[2].Name)
	}

	kids := ix.ChildrenOf("SDL_101", "Loans")
	if len(kids) != 2 || kids[0].Name != "Amt" || kids[1].Name != "Date" {
		t.Fatalf("unexpected children: %+v", kids)
	}
	testlog.Logf("schema/index: SDL_101 top=%d loans_children=%d", len(top), len(kids))
}

func TestIndexAbsentKeysAreEmpty(t *testing.T) {
	testlog.Start(t)
	specs, children := loanSpecs()
	ix, err := NewIndex(specs, children)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	if got := ix.SpecsFor("NOPE"); len(got) != 0 {
		t.Fatalf("expected no specs, got %d", len(got))
	}
	if got := ix.ChildrenOf("SDL_101", "Missing"); len(got) != 0 {
		t.Fatalf("expected no children, got %d", len(got))
	}
	if got := ix.ChildrenOf("NOPE", "Loans"); len(got) != 0 {
		t.Fatalf("expected no children, got %d", len(got))
	}

	var nilIndex *Index
	if nilIndex.SpecsFor("SDL_101") != nil || nilIndex.ChildrenOf("SDL_101", "Loans") != nil {
		t.Fatalf("nil index must yield empty lookups")
	}
}

func TestNewIndexRejectsDuplicateOrder(t *testing.T) {
	testlog.Start(t)
	specs := []FieldSpec{
		{TypeCode: "T1", Order: 1, Name: "A", Length: 1, Kind: KindText},
		{TypeCode: "T1", Order: 1, Name: "B", Length: 1, Kind: KindText},
	}
	_, err := NewIndex(specs, nil)
	if !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
	var ve ValidationError
	if !errors.As(err, &ve) || ve.TypeCode != "T1" {
		t.Fatalf("expected ValidationError for T1, got %v", err)
	}
}

func TestNewIndexRejectsDuplicateChildOrder(t *testing.T) {
	testlog.Start(t)
	children := []ChildFieldSpec{
		{FieldSpec: FieldSpec{TypeCode: "T1", Order: 1, Name: "A", Length: 1, Kind: KindText}, Parent: "P"},
		{FieldSpec: FieldSpec{TypeCode: "T1", Order: 1, Name: "B", Length: 1, Kind: KindText}, Parent: "P"},
		{FieldSpec: FieldSpec{TypeCode: "T1", Order: 1, Name: "C", Length: 1, Kind: KindText}, Parent: "Q"},
	}
	_, err := NewIndex(nil, children)
	var ve ValidationError
	if !errors.As(err, &ve) || ve.Parent != "P" || !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected duplicate order under P, got %v", err)
	}
}

func TestNewIndexRejectsDuplicateName(t *testing.T) {
	testlog.Start(t)
	specs := []FieldSpec{
		{TypeCode: "T1", Order: 1, Name: "A", Length: 1, Kind: KindText},
		{TypeCode: "T1", Order: 2, Name: "A", Length: 1, Kind: KindText},
	}
	if _, err := NewIndex(specs, nil); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestNewIndexRejectsUnknownKind(t *testing.T) {
	testlog.Start(t)
	specs := []FieldSpec{{TypeCode: "T1", Order: 1, Name: "A", Length: 1, Kind: FieldKind(42)}}
	if _, err := NewIndex(specs, nil); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestNewIndexRejectsOrphanChild(t *testing.T) {
	testlog.Start(t)
	children := []ChildFieldSpec{{FieldSpec: FieldSpec{TypeCode: "T1", Order: 1, Name: "A", Length: 1, Kind: KindText}}}
	if _, err := NewIndex(nil, children); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected ErrInvalidSpec, got %v", err)
	}
}

func TestRegistryLoadKeepsPreviousOnError(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	if codes := reg.Index().TypeCodes(); len(codes) != 0 {
		t.Fatalf("expected empty registry, got %v", codes)
	}

	specs, children := loanSpecs()
	if err := reg.Load(specs, children); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := reg.Index()

	bad := []FieldSpec{{TypeCode: "T1", Order: 1, Name: "A", Kind: FieldKind(0)}}
	if err := reg.Load(bad, nil); err == nil {
		t.Fatalf("expected load error")
	}
	if reg.Index() != before {
		t.Fatalf("failed load must not replace the published index")
	}
	codes := reg.Index().TypeCodes()
	if len(codes) != 2 || codes[0] != "QSD_501" || codes[1] != "SDL_101" {
		t.Fatalf("unexpected codes: %v", codes)
	}
	testlog.Logf("schema/registry: failed reload kept codes=%v", codes)
}

func TestRegistryConcurrentReadsDuringReload(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	specs, children := loanSpecs()
	if err := reg.Load(specs, children); err != nil {
		t.Fatalf("load: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				ix := reg.Index()
				top := ix.SpecsFor("SDL_101")
				if len(top) != 3 {
					t.Errorf("observed partial index: %d specs", len(top))
					return
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if err := reg.Load(specs, children); err != nil {
			t.Fatalf("reload: %v", err)
		}
	}
	wg.Wait()
}

func TestIndexStats(t *testing.T) {
	testlog.Start(t)
	specs, children := loanSpecs()
	ix, err := NewIndex(specs, children)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	st := ix.Stats()
	if st.TypeCodes != 2 || st.Fields != 4 || st.ChildLists != 1 || st.Children != 2 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
