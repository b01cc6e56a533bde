package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/assistant-core/internal/domain"
)

func TestLatestMessages_NewestFirstAndLimit(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		seedMessage(t, db, fmt.Sprintf("m%d", i), "chat:telegram:5", domain.RoleUser, fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Second))
	}
	seedMessage(t, db, "other", "chat:telegram:6", domain.RoleUser, "x", base.Add(time.Hour))

	got, err := LatestMessages(db, "chat:telegram:5", 2)
	if err != nil {
		t.Fatalf("LatestMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m2" || got[1].ID != "m1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	none, err := LatestMessages(db, "chat:telegram:5", 0)
	if err != nil || len(none) != 0 {
		t.Fatalf("n=0 should return nothing: %v %v", none, err)
	}
}

func TestCountMessages_Error_NoTable(t *testing.T) {
	db := newTestDB(t)
	if _, err := CountMessages(db, "id:x"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestListMessagesPage_Pagination(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		seedMessage(t, db, fmt.Sprintf("m%d", i), "id:a", domain.RoleUser, "c", base.Add(time.Duration(i)*time.Millisecond))
	}

	total, err := CountMessages(db, "id:a")
	if err != nil || total != 5 {
		t.Fatalf("count = %d err=%v", total, err)
	}
	page, err := ListMessagesPage(db, "id:a", 2, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m2" || page[1].ID != "m3" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestGetMessage_FoundAndNotFound(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	seedMessage(t, db, "m1", "id:a", domain.RoleUser, "c", time.Now().UTC())

	if m, err := GetMessage(db, "m1"); err != nil || m.ScopeKey != "id:a" {
		t.Fatalf("GetMessage: %+v %v", m, err)
	}
	if _, err := GetMessage(db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExternalMessageIDInScope(t *testing.T) {
	db := newTestDB(t, &domain.MessageRecord{})
	ext := "upd-9"
	m := &domain.MessageRecord{ID: "m1", ScopeKey: "id:a", Role: domain.RoleUser, ExternalMessageID: &ext, Content: "c", ContentHash: "h", CreatedAt: time.Now().UTC()}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx := context.Background()
	cases := []struct {
		scope, ext string
		want       bool
	}{
		{"id:a", "upd-9", true},
		{"id:a", "upd-10", false},
		{"id:b", "upd-9", false},
	}
	for _, tc := range cases {
		if ok, err := ExternalMessageIDInScope(ctx, db, tc.scope, tc.ext); err != nil || ok != tc.want {
			t.Fatalf("%s/%s = %v %v, want %v", tc.scope, tc.ext, ok, err, tc.want)
		}
	}
}
