package classifier

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/losses"
	"github.com/gomlx/gomlx/ml/train/metrics"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/models/inceptionv3"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/xla"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/constants"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/dataset"
)

// Config 분류기 설정정보. 생성 이후 변경되지 않으며,
// 학습률만 fine-tuning이 시작될 때 한번 변경됨
type Config struct {
	Name string

	TrainDir string
	ValDir   string
	TestDir  string

	NumClasses int
	Height     int
	Width      int
	BatchSize  int

	LearningRate         float64
	FineTuneLearningRate float64
	PlateauFactor        float64
	PlateauPatience      int

	// 사전학습 백본 가중치의 다운로드/캐시 디렉토리
	WeightsDir string

	// 모델 재구성에 필요한 전처리 함수 이름
	Normalization string

	Description string
}

// DefaultConfig 열화상 데이터셋 기본 설정 생성
func DefaultConfig(trainDir, valDir, testDir string) Config {
	weightsDir, err := os.UserCacheDir()
	if err != nil {
		weightsDir = os.TempDir()
	}

	return Config{
		Name:                 constants.DefaultModelName,
		TrainDir:             trainDir,
		ValDir:               valDir,
		TestDir:              testDir,
		NumClasses:           constants.DefaultNumClasses,
		Height:               constants.ImageHeight,
		Width:                constants.ImageWidth,
		BatchSize:            constants.DefaultBatchSize,
		LearningRate:         constants.LearningRate,
		FineTuneLearningRate: constants.FineTuneLearningRate,
		PlateauFactor:        constants.PlateauFactor,
		PlateauPatience:      constants.PlateauPatience,
		WeightsDir:           path.Join(weightsDir, "thermal-backbone"),
		Normalization:        "minus-one-to-one",
	}
}

// Classifier 열화상 이미지 분류기.
// 데이터셋 적재, 모델 조립, 학습, fine-tuning, 평가, 저장을 담당하며
// 동시 호출에 대해 안전하지 않음
type Classifier struct {
	cfg Config

	backend backends.Backend
	ctx     *context.Context
	trainer *train.Trainer
	exec    *context.Exec

	checkpoint    *checkpoints.Handler
	checkpointDir string

	datasets map[string]*dataset.Dataset
	labels   []string

	history      *History
	learningRate float64

	// fine-tuning 시작 이후에만 true: 동결 → 부분 해제의 단방향 전이
	backboneUnfrozen bool
}

// New 세 분할(train/val/test) 데이터셋을 적재하여 분류기 생성
func New(cfg Config) (*Classifier, error) {
	c := &Classifier{
		cfg:      cfg,
		datasets: make(map[string]*dataset.Dataset),
	}

	splits := []struct {
		name    string
		dir     string
		shuffle bool
		augment bool
	}{
		{"train", cfg.TrainDir, true, true},
		{"val", cfg.ValDir, false, false},
		{"test", cfg.TestDir, false, false},
	}

	for _, split := range splits {
		ds, err := dataset.New(split.name, dataset.Config{
			Dir:        split.dir,
			Height:     cfg.Height,
			Width:      cfg.Width,
			BatchSize:  cfg.BatchSize,
			NumClasses: cfg.NumClasses,
			Shuffle:    split.shuffle,
			Augment:    split.augment,
		})
		if err != nil {
			return nil, err
		}
		c.datasets[split.name] = ds
	}

	c.labels = c.datasets["train"].ClassNames()

	return c, nil
}

// Name 모델 이름 반환
func (c *Classifier) Name() string {
	return c.cfg.Name
}

// Description 모델 설명 반환
func (c *Classifier) Description() string {
	return c.cfg.Description
}

// InputShape 모델 입력 형태 (height, width, channels) 반환
func (c *Classifier) InputShape() []int {
	return []int{c.cfg.Height, c.cfg.Width, 3}
}

// Labels 클래스 이름 목록 반환
func (c *Classifier) Labels() []string {
	labels := make([]string, len(c.labels))
	copy(labels, c.labels)
	return labels
}

// History 가장 최근 학습 기록 반환. 학습 전에는 nil
func (c *Classifier) History() *History {
	return c.history
}

func newAccuracyMetric() metrics.Interface {
	return metrics.NewMeanMetric("accuracy", "acc", "accuracy",
		func(ctx *context.Context, labels, predictions []*graph.Node) *graph.Node {
			truth := graph.ArgMax(labels[0], -1, dtypes.Int32)
			predicted := graph.ArgMax(predictions[0], -1, dtypes.Int32)
			return graph.ConvertDType(graph.Equal(predicted, truth), dtypes.Float32)
		}, nil)
}

// setLearningRate 학습률 변경을 파라미터와 옵티마이저 변수 양쪽에 반영.
// 컴파일 된 step 그래프는 학습률을 변수에서 읽으므로, 파라미터만 바꾸면
// 이미 만들어진 변수에는 적용되지 않음
func (c *Classifier) setLearningRate(lr float64) {
	c.learningRate = lr
	c.ctx.SetParam(optimizers.ParamLearningRate, lr)
	optimizers.LearningRateVar(c.ctx, dtypes.Float32, lr).
		SetValue(tensors.FromScalar(float32(lr)))
}

// compile 현재 변수 상태와 학습률로 트레이너 재구성
func (c *Classifier) compile(learningRate float64) {
	c.setLearningRate(learningRate)

	c.trainer = train.NewTrainer(c.backend, c.ctx, c.modelGraph,
		losses.CategoricalCrossEntropyLogits,
		optimizers.FromContext(c.ctx),
		[]metrics.Interface{newAccuracyMetric()},
		[]metrics.Interface{newAccuracyMetric()})
}

// BuildModel 모델 조립: 정규화 → 동결 된 사전학습 백본 → mean pooling →
// dense 출력층. 다시 호출하면 학습 된 가중치는 버려지고 처음부터 재구성됨
func (c *Classifier) BuildModel() error {
	if c.backend == nil {
		c.backend = backends.New()
	}

	if err := inceptionv3.DownloadAndUnpackWeights(c.cfg.WeightsDir); err != nil {
		return fmt.Errorf("Fail to fetch backbone weights: %w", err)
	}

	c.ctx = context.New()
	c.checkpoint = nil
	c.checkpointDir = ""
	c.backboneUnfrozen = false
	c.compile(c.cfg.LearningRate)

	return c.materialize()
}

// materialize 빈 배치로 forward를 한번 실행하여 백본 가중치 적재와
// 입력 형태 검증을 수행
func (c *Classifier) materialize() error {
	c.exec = context.NewExec(c.backend, c.ctx,
		func(ctx *context.Context, images *graph.Node) *graph.Node {
			return graph.Softmax(c.modelGraph(ctx, nil, []*graph.Node{images})[0])
		})

	zeros := make([]float32, c.cfg.Height*c.cfg.Width*3)
	probe := tensors.FromFlatDataAndDimensions(zeros, 1, c.cfg.Height, c.cfg.Width, 3)

	return exceptions.TryCatch[error](func() {
		c.exec.Call(probe)
	})
}

func scalarF32(t *tensors.Tensor) float32 {
	switch v := t.Value().(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	}
	return float32(math.NaN())
}

// runEpoch 데이터셋 한 바퀴에 대한 평균 loss/accuracy 계산.
// update가 true면 학습 스텝, false면 평가 스텝
func (c *Classifier) runEpoch(ds *dataset.Dataset, update bool) (loss, accuracy float32, err error) {
	ds.Reset()

	var (
		totalLoss float64
		totalAcc  float64
		nrBatches int
	)

	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, 0, err
		}

		var results []*tensors.Tensor
		if update {
			results, err = c.trainer.TrainStep(spec, inputs, labels)
		} else {
			results, err = c.trainer.EvalStep(spec, inputs, labels)
		}
		if err != nil {
			return 0, 0, err
		}

		totalLoss += float64(scalarF32(results[0]))
		totalAcc += float64(scalarF32(results[len(results)-1]))
		nrBatches++
	}

	if nrBatches == 0 {
		return 0, 0, errors.New("Empty dataset")
	}

	return float32(totalLoss / float64(nrBatches)), float32(totalAcc / float64(nrBatches)), nil
}

// Train epoch 수 만큼 학습. 매 epoch 검증 데이터셋으로 평가하고,
// 최고 검증 정확도의 가중치를 modelPath에 체크포인트로 저장하며,
// 학습 loss가 정체되면 학습률을 줄임. 조기 종료는 없음
func (c *Classifier) Train(epochs int, modelPath string) error {
	if c.trainer == nil {
		return errors.New("No model: call BuildModel first")
	}

	var checkpoint *checkpoints.Handler
	if modelPath != "" {
		var err error
		checkpoint, err = c.attachCheckpoint(modelPath)
		if err != nil {
			return err
		}
	}

	c.history = &History{}
	scheduler := newReduceLROnPlateau(c.learningRate, c.cfg.PlateauFactor, c.cfg.PlateauPatience)

	best := &bestTracker{}
	for epoch := 0; epoch < epochs; epoch++ {
		trainLoss, trainAcc, err := c.runEpoch(c.datasets["train"], true)
		if err != nil {
			return err
		}

		valLoss, valAcc, err := c.runEpoch(c.datasets["val"], false)
		if err != nil {
			return err
		}

		c.history.record(trainLoss, trainAcc, valLoss, valAcc, c.learningRate)

		klog.Infof("Epoch %d/%d: loss=%.4f accuracy=%.4f val_loss=%.4f val_accuracy=%.4f",
			epoch+1, epochs, trainLoss, trainAcc, valLoss, valAcc)

		if checkpoint != nil && best.Improved(valAcc) {
			if err := checkpoint.Save(); err != nil {
				return err
			}
			if err := c.writeBundleConfig(modelPath); err != nil {
				return err
			}
			klog.Infof("Checkpoint saved: val_accuracy=%.4f", valAcc)
		}

		if lr := scheduler.Step(float64(trainLoss)); lr != c.learningRate {
			klog.Infof("ReduceLROnPlateau: learning rate %g -> %g", c.learningRate, lr)
			c.setLearningRate(lr)
		}
	}

	return nil
}

// FineTune startLayer 이후의 백본 레이어를 학습 가능 상태로 전환하고
// 낮은 학습률로 재컴파일. 동결 → 부분 해제의 일회성 전이로, 되돌릴 수 없음
func (c *Classifier) FineTune(startLayer int) error {
	if c.trainer == nil {
		return errors.New("No model: call BuildModel first")
	}

	layerScopes := c.BackboneLayers()
	if startLayer < 0 || startLayer >= len(layerScopes) {
		return fmt.Errorf("Invalid start layer %d: %d backbone layers", startLayer, len(layerScopes))
	}

	mask := trainableMask(layerScopes, startLayer)
	c.backboneUnfrozen = true
	c.ctx.EnumerateVariables(func(v *context.Variable) {
		if trainable, ok := mask[v.Scope()]; ok {
			v.Trainable = trainable
		}
	})

	c.compile(c.cfg.FineTuneLearningRate)

	return nil
}

// Evaluate 이름(train/val/test)으로 지정한 데이터셋에 대해 loss/accuracy 평가
func (c *Classifier) Evaluate(name string) (loss, accuracy float32, err error) {
	ds, ok := c.datasets[name]
	if !ok {
		return 0, 0, fmt.Errorf("No such dataset: %s", name)
	}

	if c.trainer == nil {
		return 0, 0, errors.New("No model: call BuildModel first")
	}

	return c.runEpoch(ds, false)
}

// Predict 단일 이미지에 대한 클래스 별 확률 반환
func (c *Classifier) Predict(img image.Image) ([]float32, error) {
	if c.exec == nil {
		return nil, errors.New("No model: call BuildModel first")
	}

	resized := imaging.Resize(img, c.cfg.Width, c.cfg.Height, imaging.Linear)

	flat := make([]float32, c.cfg.Height*c.cfg.Width*3)
	pos := 0
	for y := 0; y < c.cfg.Height; y++ {
		for x := 0; x < c.cfg.Width; x++ {
			offset := resized.PixOffset(x, y)
			flat[pos] = float32(resized.Pix[offset])
			flat[pos+1] = float32(resized.Pix[offset+1])
			flat[pos+2] = float32(resized.Pix[offset+2])
			pos += 3
		}
	}
	input := tensors.FromFlatDataAndDimensions(flat, 1, c.cfg.Height, c.cfg.Width, 3)

	var probs []float32
	err := exceptions.TryCatch[error](func() {
		output := c.exec.Call(input)[0]
		probs = output.Value().([][]float32)[0]
	})
	if err != nil {
		return nil, err
	}

	return probs, nil
}

// attachCheckpoint 모델 경로에 체크포인트 핸들러 연결. context 당 하나의
// 핸들러만 연결할 수 있으므로, 최초 연결 이후에는 같은 경로에 한해 재사용
func (c *Classifier) attachCheckpoint(dir string) (*checkpoints.Handler, error) {
	if c.checkpoint != nil {
		if dir != c.checkpointDir {
			return nil, fmt.Errorf("Checkpoint already attached to %s", c.checkpointDir)
		}
		return c.checkpoint, nil
	}

	// 이전 번들은 덮어쓰기
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}

	checkpoint, err := checkpoints.Build(c.ctx).Dir(dir).Keep(1).Done()
	if err != nil {
		return nil, err
	}

	c.checkpoint = checkpoint
	c.checkpointDir = dir

	return checkpoint, nil
}

func (c *Classifier) writeBundleConfig(dir string) error {
	return writeBundle(dir, bundleConfig{
		Name:           c.cfg.Name,
		InputShape:     c.InputShape(),
		NumClasses:     c.cfg.NumClasses,
		Normalization:  c.cfg.Normalization,
		LabelsFile:     constants.LabelsFileName,
		TrainingResult: c.history,
		Description:    c.cfg.Description,
	}, c.labels)
}

// Save 전체 모델(체크포인트 + config.yaml + 레이블)을 번들 디렉토리로 저장
func (c *Classifier) Save(dir string) error {
	if c.trainer == nil {
		return errors.New("No model: call BuildModel first")
	}

	checkpoint, err := c.attachCheckpoint(dir)
	if err != nil {
		return err
	}
	if err := checkpoint.Save(); err != nil {
		return err
	}

	return c.writeBundleConfig(dir)
}

// Load 저장 된 모델 번들로부터 추론용 분류기 재구성.
// 데이터셋 디렉토리는 적재하지 않으므로 학습/평가에는 사용할 수 없음
func Load(dir string) (*Classifier, error) {
	cfg, labels, err := readBundle(dir)
	if err != nil {
		return nil, err
	}
	if len(cfg.InputShape) != 3 {
		return nil, fmt.Errorf("Invalid input shape in %s: %v", dir, cfg.InputShape)
	}

	c := &Classifier{
		cfg: Config{
			Name:          cfg.Name,
			NumClasses:    cfg.NumClasses,
			Height:        cfg.InputShape[0],
			Width:         cfg.InputShape[1],
			Normalization: cfg.Normalization,
			Description:   cfg.Description,
		},
		labels:  labels,
		history: cfg.TrainingResult,
	}

	c.backend = backends.New()
	c.ctx = context.New()

	checkpoint, err := checkpoints.Build(c.ctx).Dir(dir).Done()
	if err != nil {
		return nil, err
	}
	c.checkpoint = checkpoint
	c.checkpointDir = dir

	if err := c.materialize(); err != nil {
		return nil, err
	}

	return c, nil
}
