package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/constants"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/data"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/inference"
)

// APIs api 핸들러
type APIs struct {
	I *inference.Inference
	M *data.Manager
}

// ListModels 추론 모델 목록 반환
func (a *APIs) ListModels(c *gin.Context) {
	models := a.I.GetModels()
	c.JSON(http.StatusOK, gin.H{
		"models": models,
	})
}

// ShowModel 추론 모델 정보 반환
func (a *APIs) ShowModel(c *gin.Context) {
	model := c.Param("model")
	_, verbose := c.GetQuery("verbose")

	if info := a.I.GetModel(model, verbose); info != nil {
		c.JSON(http.StatusOK, info)
	} else {
		Error(c, http.StatusBadRequest, fmt.Errorf("Cannot find model info: %s", model))
	}
}

// InferDefault 기본 모델을 이용한 추론
func (a *APIs) InferDefault(c *gin.Context) {
	a.infer(c, constants.DefaultModelName)
}

// InferWithModel 모델을 이용한 추론
func (a *APIs) InferWithModel(c *gin.Context) {
	model := c.Param("model")
	a.infer(c, model)
}

func (a *APIs) infer(c *gin.Context, model string) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		Error(c, http.StatusBadRequest, err)
		return
	}
	defer file.Close()

	var image bytes.Buffer
	n, err := io.Copy(&image, file)
	if err != nil {
		Error(c, http.StatusBadRequest, err)
		return
	}

	format := imageFormat(header.Filename)

	k, err := strconv.Atoi(c.Query("k"))
	if err != nil {
		k = constants.DefaultMultiClassMax
	}

	t0 := time.Now()
	if infers, err := a.I.Infer(model, image.Bytes(), format, k); err == nil {
		elapsed := time.Since(t0)
		c.JSON(http.StatusOK, gin.H{
			"file":        header.Filename,
			"format":      format,
			"bytes":       n,
			"inference":   infers,
			"elapsed(ms)": elapsed.Milliseconds(),
		})
	} else {
		Error(c, http.StatusBadRequest, err)
	}
}

func imageFormat(filename string) string {
	parts := strings.Split(filename, ".")
	if len(parts) < 2 {
		return ""
	}

	return strings.ToLower(parts[len(parts)-1])
}

// CreateModel model 생성
func (a *APIs) CreateModel(c *gin.Context) {
	model := c.Param("model")
	if model == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty model name"))
		return
	}

	subject := c.Query("subject")
	desc := c.Query("desc")
	_, trial := c.GetQuery("trial")
	nrEpochs, err := strconv.Atoi(c.Query("epochs"))
	if err != nil {
		nrEpochs = constants.TrainEpochs
	}

	if res, err := a.I.CreateModel(model, subject, desc, nrEpochs, trial); err != nil {
		Error(c, http.StatusInternalServerError, err)
	} else {
		c.JSON(http.StatusOK, res)
	}
}

// DeleteModel model 삭제
func (a *APIs) DeleteModel(c *gin.Context) {
	model := c.Param("model")
	if model == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty model name"))
		return
	}

	if err := a.I.DeleteModel(model); err != nil {
		Error(c, http.StatusInternalServerError, err)
	} else {
		c.String(http.StatusOK, "OK")
	}
}

// UploadImages image 업로드
func (a *APIs) UploadImages(c *gin.Context) {
	var (
		subject string
		split   string
		class   string
	)
	if subject = c.Query("subject"); subject == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty `subject`"))
		return
	}
	if split = c.Query("split"); split == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty `split`"))
		return
	}
	if class = c.Query("class"); class == "" {
		Error(c, http.StatusBadRequest, errors.New("Empty `class`"))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		Error(c, http.StatusBadRequest, err)
		return
	}
	images := form.File["images[]"]
	_, verbose := c.GetQuery("verbose")

	if result, err := a.M.SaveImages(subject, split, class, images, c.SaveUploadedFile, verbose); err != nil {
		Error(c, http.StatusBadRequest, err)
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// DeleteImages image 삭제
func (a *APIs) DeleteImages(c *gin.Context) {
	subject := c.Query("subject")
	split := c.Query("split")
	class := c.Query("class")
	fileName := c.Query("filename")
	orgFileName := c.Query("orgfilename")
	_, verbose := c.GetQuery("verbose")

	if result, err := a.M.DeleteImages(subject, split, class, fileName, orgFileName, verbose); err != nil {
		Error(c, http.StatusInternalServerError, err)
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// ListImages image 목록 반환
func (a *APIs) ListImages(c *gin.Context) {
	subject := c.Query("subject")
	split := c.Query("split")
	class := c.Query("class")

	if result, err := a.M.ListImages(subject, split, class); err != nil {
		Error(c, http.StatusBadRequest, err)
	} else {
		c.JSON(http.StatusOK, result)
	}
}

// HTTPError api 에러 메시지
type HTTPError struct {
	Error string `json:"error"`
}

// Error api 에러를 담은 json 응답 생성
func Error(c *gin.Context, status int, err error) {
	c.JSON(status, HTTPError{
		Error: err.Error(),
	})
}
