package db

import (
	"fmt"
	"testing"
	"time"
)

func TestDB(t *testing.T) {
	driverName := "mysql"
	connInfo := "user1:password1@tcp(db:3306)/thermal_image_db?parseTime=true"
	tableName := "test_tab1"

	conn, err := New(Config{
		DriverName: driverName,
		ConnInfo:   connInfo,
		TableName:  tableName,
	})
	if err != nil {
		t.Skipf("DB not available: %s", err)
	}
	defer func() {
		conn.db.Exec(fmt.Sprintf("DROP TABLE %s;", tableName))
		conn.Destroy()
	}()

	item := Item{
		Subject:     "boiler",
		Split:       "train",
		Class:       "overheat",
		OrgFilename: "sample.png",
		Filename:    "12345678-sample.png",
		FileFormat:  "png",
		FilePath:    "/thermal/images/boiler/train/overheat/12345678-sample.png",
		CreateAt:    time.Now(),
	}

	if err := conn.Insert(item); err != nil {
		t.Fatal(err)
	}

	infos, items, err := conn.Get(Item{Subject: "boiler", Split: "train"})
	if err != nil {
		t.Fatal(err)
	}

	infosMap := infos.(map[string]int64)
	if infosMap["total"] != 1 || infosMap["successful"] != 1 {
		t.Fatalf("unexpected get infos: %v", infosMap)
	}

	got := items.([]Item)[0]
	if got.Filename != item.Filename || got.Class != item.Class {
		t.Fatalf("unexpected item: %+v", got)
	}

	deleted, err := conn.Delete(Item{Subject: "boiler"})
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}

func TestItemFilters(t *testing.T) {
	where, args := itemFilters(Item{})
	if where != "" || len(args) != 0 {
		t.Fatalf("expected no filters, got %q %v", where, args)
	}

	where, args = itemFilters(Item{Subject: "boiler", Class: "overheat"})
	if where != " WHERE subject = ? AND class = ?" {
		t.Fatalf("unexpected where clause: %q", where)
	}
	if len(args) != 2 || args[0] != "boiler" || args[1] != "overheat" {
		t.Fatalf("unexpected args: %v", args)
	}
}
