package data

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/constants"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/data/db"
)

const (
	tableName  string = "image_tab"
	driverName string = "mysql"
	connInfo   string = "user1:password1@tcp(db:3306)/thermal_image_db?parseTime=true"
)

// 학습 데이터셋 구성과 일치하는 split 목록
var validSplits = map[string]bool{
	"train": true,
	"val":   true,
	"test":  true,
}

// Manager 이미지 데이터를 관리
type Manager struct {
	Conn *db.DBconn

	imagesPath string
}

type saveFunc func(*multipart.FileHeader, string) error

func saveImage(file *multipart.FileHeader, dst string) error {
	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)

	return err
}

// fileFormat 파일 이름의 마지막 확장자 반환. 확장자가 없으면 빈 문자열
func fileFormat(filename string) string {
	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return ""
	}

	return strings.ToLower(parts[len(parts)-1])
}

func validateSplit(split string) error {
	if !validSplits[split] {
		return fmt.Errorf("Invalid split: %s (expect train, val or test)", split)
	}

	return nil
}

// SaveImages image 저장
func (dm *Manager) SaveImages(subject, split, class string, images []*multipart.FileHeader, f saveFunc, verbose bool) (interface{}, error) {
	if err := validateSplit(split); err != nil {
		return nil, err
	}

	fileDir := path.Join(dm.imagesPath, subject, split, class)
	if err := os.MkdirAll(fileDir, os.ModePerm); err != nil {
		return nil, err
	}

	if f == nil {
		f = saveImage
	}

	var (
		total      int64
		successful int64
		failed     int64
		items      []db.Item
		errors     []map[string]interface{}
	)
	for _, image := range images {
		total++

		orgFileName := image.Filename
		fileName := fmt.Sprintf("%s-%s", uuid.New().String()[:8], orgFileName)
		format := fileFormat(orgFileName)
		filePath := path.Join(fileDir, fileName)

		item := db.Item{
			Subject:     subject,
			Split:       split,
			Class:       class,
			OrgFilename: orgFileName,
			Filename:    fileName,
			FileFormat:  format,
			FilePath:    filePath,
			CreateAt:    time.Now(),
		}

		if err := dm.Conn.Insert(item); err != nil {
			if verbose {
				errors = append(errors, map[string]interface{}{
					"orgfilename": orgFileName,
					"filename":    fileName,
					"error":       err.Error(),
				})
			}

			failed++
			continue
		}

		if err := f(image, filePath); err != nil {
			if verbose {
				errors = append(errors, map[string]interface{}{
					"orgfilename": orgFileName,
					"filename":    fileName,
					"error":       err.Error(),
				})
			}

			if _, err := dm.Conn.Delete(item); err != nil {
				log.Print(err)
			}

			failed++
			continue
		}

		if verbose {
			items = append(items, item)
		}
		successful++
	}

	infos := map[string]int64{
		"total":      total,
		"successful": successful,
		"failed":     failed,
	}

	result := make(map[string]interface{})
	result["infos"] = infos

	if verbose {
		result["images"] = items
		result["errors"] = errors
	}

	return result, nil
}

// DeleteImages image 삭제
func (dm *Manager) DeleteImages(subject, split, class, fileName, orgFileName string, verbose bool) (interface{}, error) {
	param := db.Item{
		Subject:     subject,
		Split:       split,
		Class:       class,
		Filename:    fileName,
		OrgFilename: orgFileName,
	}

	getInfos, items, err := dm.Conn.Get(param)
	if err != nil {
		return nil, err
	}

	getInfosMap := getInfos.(map[string]int64)
	if getInfosMap["total"] != getInfosMap["successful"] {
		return nil, fmt.Errorf(
			"Fail to read images %d of %d",
			getInfosMap["failed"],
			getInfosMap["total"],
		)
	}

	errors := make([]map[string]interface{}, 0)
	// 빈 디렉토리를 삭제하기 위해, 삭제 된 파일의 경로 목록을 저장
	dirMap := make(map[string]int)
	for _, item := range items.([]db.Item) {
		if err := os.Remove(item.FilePath); err != nil {
			if verbose {
				errors = append(errors, map[string]interface{}{
					"orgfilename": item.OrgFilename,
					"filename":    item.Filename,
					"error":       err.Error(),
				})
			}
		} else {
			dirMap[path.Dir(item.FilePath)]++
		}
	}

	deleted, err := dm.Conn.Delete(param)
	if err != nil {
		return nil, err
	}

	for dir := range dirMap {
		// class -> split -> subject 순으로 올라가며 빈 디렉토리 정리.
		// "directory not empty" 에러는 무시
		for dir != dm.imagesPath && strings.HasPrefix(dir, dm.imagesPath) {
			if err := os.Remove(dir); err != nil {
				break
			}
			dir = path.Dir(dir)
		}
	}

	infos := map[string]interface{}{
		"total":      getInfosMap["total"],
		"successful": deleted,
		"failed":     getInfosMap["total"] - deleted,
	}

	result := make(map[string]interface{})
	result["infos"] = infos

	if verbose {
		result["images"] = items
		result["errors"] = errors
	}

	return result, nil
}

// ListImages image 목록 반환
func (dm *Manager) ListImages(subject, split, class string) (interface{}, error) {
	param := db.Item{
		Subject: subject,
		Split:   split,
		Class:   class,
	}

	infos, items, err := dm.Conn.Get(param)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"infos":  infos,
		"images": items,
	}

	return result, nil
}

// Destroy Data manager 해제
func (dm *Manager) Destroy() {
	if err := dm.Conn.Destroy(); err != nil {
		log.Printf("DB %s close failed: %s", dm.Conn.TableName, err)
	} else {
		log.Printf("DB %s successfully closed", dm.Conn.TableName)
	}
}

// New 새로운 Data manager 생성
func New(imagesPath string) (*Manager, error) {
	conn, err := db.New(db.Config{
		DriverName: driverName,
		ConnInfo:   connInfo,
		TableName:  tableName,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("DB %s successfully initialized", tableName)

	if imagesPath == "" {
		imagesPath = constants.ImagesPath
	}

	dm := &Manager{
		Conn:       conn,
		imagesPath: imagesPath,
	}

	return dm, nil
}
