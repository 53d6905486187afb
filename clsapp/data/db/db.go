package db

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Config DBconn config
type Config struct {
	DriverName string
	ConnInfo   string

	TableName string
}

// DBconn db 연결정보
type DBconn struct {
	DriverName string
	ConnInfo   string

	TableName string

	db *sql.DB
}

// Item 데이터 항목
type Item struct {
	Subject     string    `json:"subject"`
	Split       string    `json:"split"`
	Class       string    `json:"class"`
	OrgFilename string    `json:"orgfilename"`
	Filename    string    `json:"filename"`
	FileFormat  string    `json:"format"`
	FilePath    string    `json:"path"`
	CreateAt    time.Time `json:"createAt"`
}

func (conn *DBconn) createTable() error {
	if _, err := conn.db.Exec(fmt.Sprintf(`CREATE TABLE %s (
		subject CHAR(20) NOT NULL,
		split CHAR(10) NOT NULL,
		class CHAR(20) NOT NULL,
		orgfilename CHAR(64) NOT NULL,
		filename CHAR(80) NOT NULL,
		format CHAR(10) NOT NULL,
		path VARCHAR(128) NOT NULL,
		createAt DATETIME NOT NULL);`, conn.TableName)); err != nil {
		return err
	}

	return nil
}

func (conn *DBconn) existsTable() bool {
	if _, err := conn.db.Query(fmt.Sprintf("SELECT * FROM %s;", conn.TableName)); err != nil {
		return false
	}

	return true
}

func (conn *DBconn) initTable() error {
	if !conn.existsTable() {
		log.Printf("Create DB table: %s", conn.TableName)
		return conn.createTable()
	}

	return nil
}

func itemFilters(param Item) (string, []interface{}) {
	var (
		where string
		args  []interface{}
	)

	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		where += column + " = ?"
		args = append(args, value)
	}

	addFilter("subject", param.Subject)
	addFilter("split", param.Split)
	addFilter("class", param.Class)
	addFilter("filename", param.Filename)
	addFilter("orgfilename", param.OrgFilename)

	return where, args
}

// Insert entry 삽입
func (conn *DBconn) Insert(item Item) error {
	createAt := item.CreateAt.Format("2006-01-02 15:04:05")

	_, err := conn.db.Exec(fmt.Sprintf(`INSERT INTO %s (
		subject,
		split,
		class,
		orgfilename,
		filename,
		format,
		path,
		createAt) value (?, ?, ?, ?, ?, ?, ?, ?);`, conn.TableName),
		item.Subject, item.Split, item.Class, item.OrgFilename,
		item.Filename, item.FileFormat, item.FilePath, createAt,
	)

	return err
}

// Get param과 일치하는 entry 목록 반환
func (conn *DBconn) Get(param Item) (interface{}, interface{}, error) {
	where, args := itemFilters(param)

	rows, err := conn.db.Query(fmt.Sprintf(`SELECT
		subject,
		split,
		class,
		orgfilename,
		filename,
		format,
		path,
		createAt FROM %s%s;`, conn.TableName, where), args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		total      int64
		successful int64
		failed     int64
		items      []Item
	)
	for rows.Next() {
		total++

		var item Item
		if err := rows.Scan(
			&item.Subject, &item.Split, &item.Class, &item.OrgFilename,
			&item.Filename, &item.FileFormat, &item.FilePath, &item.CreateAt,
		); err != nil {
			failed++
			continue
		}

		items = append(items, item)
		successful++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	infos := map[string]int64{
		"total":      total,
		"successful": successful,
		"failed":     failed,
	}

	return infos, items, nil
}

// Delete param과 일치하는 entry 삭제
func (conn *DBconn) Delete(param Item) (int64, error) {
	where, args := itemFilters(param)

	res, err := conn.db.Exec(
		fmt.Sprintf("DELETE FROM %s%s;", conn.TableName, where), args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// Destroy db connection 해제
func (conn *DBconn) Destroy() error {
	return conn.db.Close()
}

// New 새로운 db connection 생성
func New(cfg Config) (*DBconn, error) {
	db, err := sql.Open(cfg.DriverName, cfg.ConnInfo)
	if err != nil {
		return nil, err
	}

	conn := &DBconn{
		DriverName: cfg.DriverName,
		ConnInfo:   cfg.ConnInfo,
		TableName:  cfg.TableName,
		db:         db,
	}

	if err := conn.initTable(); err != nil {
		db.Close()
		return nil, err
	}

	return conn, nil
}
