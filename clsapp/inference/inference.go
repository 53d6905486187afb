package inference

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/clsapp/constants"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/classifier"
)

// Config 열화상 추론 모델 생성 설정정보
type Config struct {
	ModelsPath    string
	ImagesPath    string
	UserModelPath string
}

// Inference 열화상 추론 모델 관리
type Inference struct {
	models  map[string]*iModel
	rwMutex sync.RWMutex

	modelsPath    string
	imagesPath    string
	userModelPath string
}

const (
	modelStatusReady = iota
	modelStatusBuild
	modelStatusRun
)

// iModel 열화상 추론 모델
type iModel struct {
	name      string
	modelPath string
	status    int32
	refCount  int32

	cls *classifier.Classifier
}

func getNewModel(model, modelPath string) *iModel {
	return &iModel{
		name:      model,
		modelPath: modelPath,
		status:    modelStatusReady,
	}
}

func loadModel(m *iModel) error {
	cls, err := classifier.Load(m.modelPath)
	if err != nil {
		return err
	}

	m.cls = cls
	if m.name == "" {
		m.name = cls.Name()
	}
	if m.name == "" {
		m.name = path.Base(m.modelPath)
	}
	// 상태 변경은 항상 마지막
	atomic.StoreInt32(&m.status, modelStatusRun)

	return nil
}

func (i *Inference) loadModels() error {
	dirs, _ := os.ReadDir(i.modelsPath)

	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		modelPath := path.Join(i.modelsPath, dir.Name())

		m := getNewModel("", modelPath)
		if err := loadModel(m); err != nil {
			log.Printf("Fail to load model(%s): %s", modelPath, err)
		} else if err := i.addModel(m); err != nil {
			log.Print(err)
		}
	}

	if i.userModelPath != "" {
		m := getNewModel("", i.userModelPath)
		if err := loadModel(m); err != nil {
			log.Printf("Fail to load user model(%s): %s", i.userModelPath, err)
		} else if err := i.addModel(m); err != nil {
			log.Print(err)
		}
	}

	return nil
}

func (i *Inference) addModel(newM *iModel) error {
	if newM.name == "" {
		return errors.New("Empty model name")
	}

	for model, m := range i.models {
		if model == newM.name || m.name == newM.name {
			return fmt.Errorf("Duplicated model: %s", newM.name)
		} else if m.modelPath == newM.modelPath {
			return fmt.Errorf("Duplicated model path: %s", newM.modelPath)
		}
	}

	i.models[newM.name] = newM
	return nil
}

func (i *Inference) delModel(model string) error {
	m, ok := i.models[model]
	if !ok {
		return fmt.Errorf("No such model: %s", model)
	}

	if m.refCount > 0 {
		return fmt.Errorf("Currently in use: %s (%d)", m.name, m.refCount)
	}

	if err := os.RemoveAll(m.modelPath); err != nil {
		return err
	}

	delete(i.models, m.name)

	return nil
}

func (i *Inference) delModelUncond(delM *iModel) {
	if err := os.RemoveAll(delM.modelPath); err != nil {
		log.Print(err)
	}

	delete(i.models, delM.name)
}

func (i *Inference) getModel(model string) *iModel {
	if m, ok := i.models[model]; ok {
		atomic.AddInt32(&m.refCount, 1)
		return m
	}

	return nil
}

func (i *Inference) putModel(m *iModel) {
	atomic.AddInt32(&m.refCount, -1)
}

func countClasses(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			count++
		}
	}

	if count == 0 {
		return 0, fmt.Errorf("No class directories under %s", dir)
	}

	return count, nil
}

// CreateModel subject의 업로드 이미지로 새로운 추론 모델을 학습 후 등록.
// trial이면 학습과 평가만 수행하고 모델은 버림
func (i *Inference) CreateModel(newModel, subject, desc string, epochs int, trial bool) (map[string]interface{}, error) {
	if subject == "" {
		return nil, errors.New("Empty subject")
	}

	modelDir := fmt.Sprintf("%s-%s", newModel, uuid.New().String()[:8])
	modelPath := path.Join(i.modelsPath, modelDir)

	m := getNewModel(newModel, modelPath)
	i.rwMutex.Lock()
	// 새로운 모델 생성 및 로드 전 슬롯 선점
	if err := i.addModel(m); err != nil {
		i.rwMutex.Unlock()
		return nil, err
	}
	i.getModel(newModel)
	i.rwMutex.Unlock()
	defer i.putModel(m)

	atomic.StoreInt32(&m.status, modelStatusBuild)

	imagePath := path.Join(i.imagesPath, subject)
	result, err := i.trainModel(m, imagePath, desc, epochs, trial)
	if err != nil || trial {
		i.rwMutex.Lock()
		i.delModelUncond(m)
		i.rwMutex.Unlock()
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (i *Inference) trainModel(m *iModel, imagePath, desc string, epochs int, trial bool) (map[string]interface{}, error) {
	trainDir := path.Join(imagePath, "train")

	numClasses, err := countClasses(trainDir)
	if err != nil {
		return nil, err
	}

	cfg := classifier.DefaultConfig(
		trainDir,
		path.Join(imagePath, "val"),
		path.Join(imagePath, "test"))
	cfg.Name = m.name
	cfg.NumClasses = numClasses
	cfg.Description = desc

	cls, err := classifier.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := cls.BuildModel(); err != nil {
		return nil, err
	}
	if err := cls.Train(epochs, m.modelPath); err != nil {
		return nil, err
	}

	valLoss, valAccuracy, err := cls.Evaluate("val")
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"modelPath":          m.modelPath,
		"epochs":             epochs,
		"numberOfClasses":    numClasses,
		"validationLoss":     valLoss,
		"validationAccuracy": valAccuracy,
	}

	if trial {
		return result, nil
	}

	if err := cls.Save(m.modelPath); err != nil {
		return nil, err
	}

	m.cls = cls
	atomic.StoreInt32(&m.status, modelStatusRun)

	return result, nil
}

// DeleteModel 모델 삭제
func (i *Inference) DeleteModel(model string) error {
	i.rwMutex.Lock()
	defer i.rwMutex.Unlock()

	return i.delModel(model)
}

// GetModels 추론 모델 목록 반환
func (i *Inference) GetModels() []string {
	i.rwMutex.RLock()
	defer i.rwMutex.RUnlock()

	var models []string
	for model := range i.models {
		models = append(models, model)
	}

	return models
}

// GetModel 추론 모델 정보 반환
func (i *Inference) GetModel(model string, verbose bool) map[string]interface{} {
	i.rwMutex.RLock()
	m := i.getModel(model)
	i.rwMutex.RUnlock()

	if m == nil {
		return nil
	}
	defer i.putModel(m)

	var status string
	switch atomic.LoadInt32(&m.status) {
	case modelStatusReady:
		status = "ready"
	case modelStatusBuild:
		status = "build"
	case modelStatusRun:
		status = "run"
	default:
		status = "unknown"
	}

	info := map[string]interface{}{
		"model":    m.name,
		"refCount": m.refCount,
		"status":   status,
	}

	if m.cls == nil {
		return info
	}

	allLabels := m.cls.Labels()
	var labels []string
	if verbose {
		labels = make([]string, len(allLabels))
		copy(labels, allLabels)
	} else {
		l := 10
		if l > len(allLabels) {
			l = len(allLabels)
		}
		labels = make([]string, l)
		copy(labels, allLabels)
		if len(allLabels) > l {
			labels = append(labels, "...")
		}
	}

	info["inputShape"] = m.cls.InputShape()
	info["numberOfLabels"] = len(allLabels)
	info["labels"] = labels
	info["description"] = m.cls.Description()

	if verbose {
		if h := m.cls.History(); h != nil {
			info["trainingResult"] = map[string]interface{}{
				"epochs":             h.Epochs,
				"trainLoss":          h.TrainLoss,
				"trainAccuracy":      h.TrainAccuracy,
				"validationLoss":     h.ValidationLoss,
				"validationAccuracy": h.ValidationAccuracy,
			}
		}
	}

	return info
}

// InferLabel 이미지 추론 항목
type InferLabel struct {
	Prob  float32 `json:"probability"`
	Label string  `json:"label"`
}

type sortByProb []InferLabel

func (s sortByProb) Len() int {
	return len(s)
}

func (s sortByProb) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s sortByProb) Less(i, j int) bool {
	return s[i].Prob > s[j].Prob
}

var imageFormats = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"bmp":  true,
}

func decodeImage(data []byte, format string) (image.Image, error) {
	if !imageFormats[format] {
		return nil, fmt.Errorf("Unsupported image format: %s", format)
	}

	return imaging.Decode(bytes.NewReader(data))
}

// topLabels 확률 상위 k개의 추론 항목 반환
func topLabels(probs []float32, labels []string, k int) ([]InferLabel, error) {
	if len(probs) != len(labels) {
		return nil, fmt.Errorf(
			"The number of correct(%d) and predicted(%d) labels does not match",
			len(labels),
			len(probs),
		)
	}

	var infers []InferLabel
	for idx, prob := range probs {
		infers = append(infers, InferLabel{
			Prob:  prob,
			Label: labels[idx],
		})
	}
	sort.Sort(sortByProb(infers))

	if k <= 0 {
		k = constants.DefaultMultiClassMax
	}

	if k > len(infers) {
		k = len(infers)
	}

	return infers[:k], nil
}

// Infer 추론
func (i *Inference) Infer(model string, imageData []byte, format string, k int) ([]InferLabel, error) {
	i.rwMutex.RLock()
	m := i.getModel(model)
	i.rwMutex.RUnlock()

	if m == nil {
		return nil, fmt.Errorf("No such model: %s", model)
	}
	defer i.putModel(m)

	if atomic.LoadInt32(&m.status) != modelStatusRun {
		return nil, fmt.Errorf("Not ready yet")
	}

	img, err := decodeImage(imageData, format)
	if err != nil {
		return nil, err
	}

	probs, err := m.cls.Predict(img)
	if err != nil {
		return nil, err
	}

	return topLabels(probs, m.cls.Labels(), k)
}

// Destroy 추론 모델 관리자 해제
func (i *Inference) Destroy() {
	i.rwMutex.Lock()
	defer i.rwMutex.Unlock()

	i.models = make(map[string]*iModel)
}

// New 추론 모델 관리자 생성
func New(c Config) (i *Inference, err error) {
	modelsPath := c.ModelsPath
	if modelsPath == "" {
		modelsPath = constants.ModelsPath
	}
	imagesPath := c.ImagesPath
	if imagesPath == "" {
		imagesPath = constants.ImagesPath
	}

	i = &Inference{
		models:        make(map[string]*iModel),
		modelsPath:    modelsPath,
		imagesPath:    imagesPath,
		userModelPath: c.UserModelPath,
	}
	err = i.loadModels()

	return
}
