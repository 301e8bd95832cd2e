package dbtypes

import "testing"

func TestStringListScanAndValue(t *testing.T) {
	var list StringList
	if err := list.Scan([]byte(`["ops/a.png","ops/b.png"]`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(list) != 2 || list[1] != "ops/b.png" {
		t.Fatalf("unexpected list %v", list)
	}

	var empty StringList
	value, err := empty.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value != "[]" {
		t.Fatalf("expected empty array, got %v", value)
	}

	if err := list.Scan(nil); err != nil || len(list) != 0 {
		t.Fatalf("nil scan should reset list, got %v err=%v", list, err)
	}
}

func TestJSONValueRejectsInvalidDocuments(t *testing.T) {
	if _, err := JSON(`{"scenes":`).Value(); err == nil {
		t.Fatal("expected invalid json to fail")
	}
	value, err := JSON(`{"variations":3}`).Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if value != `{"variations":3}` {
		t.Fatalf("unexpected value %v", value)
	}
	if value, _ := JSON(nil).Value(); value != nil {
		t.Fatalf("empty document should be NULL, got %v", value)
	}
}
