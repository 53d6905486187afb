package classifier

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/constants"
)

func writeSplitDirs(t *testing.T, base string, classes []string) (train, val, test string) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 16, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 80, G: 80, B: 80, A: 255})
		}
	}

	for _, split := range []string{"train", "val", "test"} {
		for _, class := range classes {
			dir := path.Join(base, split, class)
			require.NoError(t, os.MkdirAll(dir, os.ModePerm))

			fp, err := os.Create(path.Join(dir, "sample.png"))
			require.NoError(t, err)
			require.NoError(t, png.Encode(fp, img))
			require.NoError(t, fp.Close())
		}
	}

	return path.Join(base, "train"), path.Join(base, "val"), path.Join(base, "test")
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()

	train, val, test := writeSplitDirs(t, t.TempDir(), []string{"cold", "hot"})

	cfg := DefaultConfig(train, val, test)
	cfg.NumClasses = 2
	cfg.Height = 12
	cfg.Width = 16
	cfg.BatchSize = 2

	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestDefaultConfigAspectRatio(t *testing.T) {
	cfg := DefaultConfig("train", "val", "test")

	// 320x240 비율 유지: 75 * 320/240 = 100
	assert.Equal(t, 75, cfg.Height)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, constants.DefaultNumClasses, cfg.NumClasses)
	assert.Equal(t, constants.LearningRate, cfg.LearningRate)
}

func TestNewFailsOnClassCountMismatch(t *testing.T) {
	train, val, test := writeSplitDirs(t, t.TempDir(), []string{"cold", "hot", "warm"})

	cfg := DefaultConfig(train, val, test)
	cfg.NumClasses = 2
	cfg.Height = 12
	cfg.Width = 16

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestInputShape(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, []int{12, 16, 3}, c.InputShape())
}

func TestLabelsFollowClassOrder(t *testing.T) {
	c := newTestClassifier(t)
	assert.Equal(t, []string{"cold", "hot"}, c.Labels())
}

func TestEvaluateUnknownDataset(t *testing.T) {
	c := newTestClassifier(t)

	_, _, err := c.Evaluate("validation")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "No such dataset")
}

func TestTrainRequiresModel(t *testing.T) {
	c := newTestClassifier(t)

	err := c.Train(1, "")
	assert.Error(t, err)
}

func TestFineTuneRequiresModel(t *testing.T) {
	c := newTestClassifier(t)

	err := c.FineTune(0)
	assert.Error(t, err)
}

func TestTrainableMaskSplitsAtStartLayer(t *testing.T) {
	layerScopes := []string{"/backbone/a", "/backbone/b", "/backbone/c", "/backbone/d"}

	mask := trainableMask(layerScopes, 2)
	assert.False(t, mask["/backbone/a"])
	assert.False(t, mask["/backbone/b"])
	assert.True(t, mask["/backbone/c"])
	assert.True(t, mask["/backbone/d"])

	// 0이면 전체 해제, len이면 전체 동결 유지
	mask = trainableMask(layerScopes, 0)
	for _, scope := range layerScopes {
		assert.True(t, mask[scope])
	}
}

func TestSetLearningRateUpdatesOptimizerVariable(t *testing.T) {
	c := newTestClassifier(t)
	c.ctx = context.New()

	c.setLearningRate(1e-3)
	lrVar := optimizers.LearningRateVar(c.ctx, dtypes.Float32, 1e-3)
	assert.Equal(t, float32(1e-3), lrVar.Value().Value().(float32))

	// 학습 중의 변경도 옵티마이저가 읽는 변수에 반영되어야 함
	c.setLearningRate(1e-4)
	assert.Equal(t, float32(1e-4), lrVar.Value().Value().(float32))
	assert.Equal(t, 1e-4, c.learningRate)
}

func TestCheckpointAttachedOncePerContext(t *testing.T) {
	c := newTestClassifier(t)
	c.checkpoint = &checkpoints.Handler{}
	c.checkpointDir = "/models/a"

	// 같은 경로는 기존 핸들러 재사용
	h, err := c.attachCheckpoint("/models/a")
	require.NoError(t, err)
	assert.Same(t, c.checkpoint, h)

	// context에는 하나의 핸들러만 연결할 수 있으므로 다른 경로는 거부
	_, err = c.attachCheckpoint("/models/b")
	assert.Error(t, err)
}

func TestBestTrackerImprovement(t *testing.T) {
	b := &bestTracker{}

	// 최초 관측은 항상 저장 대상
	assert.True(t, b.Improved(0))

	assert.True(t, b.Improved(0.5))
	assert.False(t, b.Improved(0.5))
	assert.False(t, b.Improved(0.4))
	assert.True(t, b.Improved(0.6))
}

func TestPlotWithoutHistory(t *testing.T) {
	c := newTestClassifier(t)

	file := path.Join(t.TempDir(), "curves.json")
	require.NoError(t, c.PlotTrainingHistory(file))

	// 학습 이력이 없으면 아무것도 생성하지 않음
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))
}

func TestHistoryRecordAndBest(t *testing.T) {
	h := &History{}
	h.record(1.0, 0.5, 1.1, 0.4, 1e-3)
	h.record(0.8, 0.6, 0.9, 0.7, 1e-3)
	h.record(0.7, 0.7, 0.95, 0.6, 1e-4)

	assert.Equal(t, 3, h.Epochs)
	assert.Equal(t, []float32{1.0, 0.8, 0.7}, h.TrainLoss)

	best, epoch := h.BestValidationAccuracy()
	assert.Equal(t, float32(0.7), best)
	assert.Equal(t, 1, epoch)
}

func TestBestValidationAccuracyEmpty(t *testing.T) {
	h := &History{}

	_, epoch := h.BestValidationAccuracy()
	assert.Equal(t, -1, epoch)
}
