package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlateauReducesAfterPatience(t *testing.T) {
	s := newReduceLROnPlateau(1e-3, 0.1, 3)

	// 첫 호출은 기준값 설정
	assert.Equal(t, 1e-3, s.Step(1.0))

	// patience 전까지는 유지
	assert.Equal(t, 1e-3, s.Step(1.0))
	assert.Equal(t, 1e-3, s.Step(1.0))

	// 3 epoch 연속 정체 후 감소
	assert.InDelta(t, 1e-4, s.Step(1.0), 1e-12)
}

func TestPlateauResetsOnImprovement(t *testing.T) {
	s := newReduceLROnPlateau(1e-3, 0.1, 2)

	s.Step(1.0)
	s.Step(1.0)

	// loss 개선으로 정체 카운트 초기화
	assert.Equal(t, 1e-3, s.Step(0.5))
	assert.Equal(t, 1e-3, s.Step(0.5))
	assert.InDelta(t, 1e-4, s.Step(0.5), 1e-12)
}

func TestPlateauThresholdIgnoresNoise(t *testing.T) {
	s := newReduceLROnPlateau(1e-2, 0.5, 2)

	s.Step(1.0)

	// threshold보다 작은 개선은 정체로 취급
	s.Step(1.0 - 1e-5)
	assert.InDelta(t, 5e-3, s.Step(1.0-2e-5), 1e-12)
}

func TestPlateauDefaults(t *testing.T) {
	s := newReduceLROnPlateau(1e-3, -1, 0)

	assert.Equal(t, 0.1, s.factor)
	assert.Equal(t, 10, s.patience)
}
