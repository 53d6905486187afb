package inference

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImage(t *testing.T) {
	data := pngBytes(t)

	img, err := decodeImage(data, "png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestDecodeImageUnsupportedFormat(t *testing.T) {
	_, err := decodeImage(pngBytes(t), "gif")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported image format")
}

func TestTopLabelsSortsByProbability(t *testing.T) {
	probs := []float32{0.1, 0.6, 0.3}
	labels := []string{"cold", "hot", "warm"}

	infers, err := topLabels(probs, labels, 2)
	require.NoError(t, err)
	require.Len(t, infers, 2)

	assert.Equal(t, "hot", infers[0].Label)
	assert.Equal(t, float32(0.6), infers[0].Prob)
	assert.Equal(t, "warm", infers[1].Label)
}

func TestTopLabelsDefaultsK(t *testing.T) {
	probs := make([]float32, 7)
	labels := make([]string, 7)
	for i := range probs {
		probs[i] = float32(i)
		labels[i] = string(rune('a' + i))
	}

	// k <= 0이면 기본 최대 개수 적용
	infers, err := topLabels(probs, labels, 0)
	require.NoError(t, err)
	assert.Len(t, infers, 5)

	// k가 레이블 수보다 크면 전체 반환
	infers, err = topLabels(probs, labels, 100)
	require.NoError(t, err)
	assert.Len(t, infers, 7)
}

func TestTopLabelsLengthMismatch(t *testing.T) {
	_, err := topLabels([]float32{0.5}, []string{"cold", "hot"}, 1)
	assert.Error(t, err)
}

func TestCountClasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(path.Join(dir, "overheat"), os.ModePerm))
	require.NoError(t, os.MkdirAll(path.Join(dir, "normal"), os.ModePerm))
	require.NoError(t, os.WriteFile(path.Join(dir, "README"), []byte("x"), 0644))

	// 파일은 클래스로 세지 않음
	count, err := countClasses(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCountClassesEmpty(t *testing.T) {
	_, err := countClasses(t.TempDir())
	assert.Error(t, err)
}

func TestAddModelRejectsDuplicates(t *testing.T) {
	i := &Inference{models: make(map[string]*iModel)}

	require.NoError(t, i.addModel(getNewModel("thermal", "/models/thermal-1")))

	err := i.addModel(getNewModel("thermal", "/models/thermal-2"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicated model")

	err = i.addModel(getNewModel("other", "/models/thermal-1"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicated model path")

	err = i.addModel(getNewModel("", "/models/unnamed"))
	assert.Error(t, err)
}

func TestModelRefCount(t *testing.T) {
	i := &Inference{models: make(map[string]*iModel)}
	require.NoError(t, i.addModel(getNewModel("thermal", "/models/thermal-1")))

	m := i.getModel("thermal")
	require.NotNil(t, m)
	assert.Equal(t, int32(1), m.refCount)

	// 참조 중인 모델은 삭제 불가
	err := i.delModel("thermal")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Currently in use")

	i.putModel(m)
	assert.Equal(t, int32(0), m.refCount)

	assert.Nil(t, i.getModel("nonexistent"))
}

func TestCreateModelRequiresSubject(t *testing.T) {
	i := &Inference{models: make(map[string]*iModel)}

	_, err := i.CreateModel("thermal", "", "", 1, false)
	assert.Error(t, err)
}
