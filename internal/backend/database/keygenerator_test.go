package database

import (
	"testing"

	"github.com/google/uuid"
)

func Test_generateID_RandomUUID(t *testing.T) {
	got, err := generateID()
	if err != nil {
		t.Fatalf("generateID() returned error: %v", err)
	}
	id, err := uuid.Parse(got)
	if err != nil {
		t.Fatalf("generateID() returned unparsable id %q: %v", got, err)
	}
	if id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		t.Errorf("expected random RFC 4122 uuid, got version %d variant %s", id.Version(), id.Variant())
	}
	if id.String() != got {
		t.Errorf("expected canonical lower-case form, got %q", got)
	}
}

func TestCreateReport_AssignsDistinctIDs(t *testing.T) {
	ds := newTestDB(t)

	const n = 64
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		report := &Report{Address: "Main Street 1", ImagePath: "processed/x.jpg"}
		id, err := ds.CreateReport(report)
		if err != nil {
			t.Fatalf("CreateReport error: %v", err)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("report id %q is not a uuid: %v", id, err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate report id %q", id)
		}
		seen[id] = struct{}{}
	}

	reports, err := ds.GetReports()
	if err != nil {
		t.Fatalf("GetReports error: %v", err)
	}
	if len(reports) != n {
		t.Errorf("expected %d reports, got %d", n, len(reports))
	}
}
