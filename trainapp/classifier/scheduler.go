package classifier

// reduceLROnPlateau 학습 loss가 정체되면 학습률을 일정 비율로 줄이는
// epoch 단위 스케줄러
type reduceLROnPlateau struct {
	factor    float64
	patience  int
	threshold float64

	learningRate float64
	best         float64
	badEpochs    int
	initialized  bool
}

func newReduceLROnPlateau(learningRate, factor float64, patience int) *reduceLROnPlateau {
	if factor <= 0 || factor >= 1 {
		factor = 0.1
	}
	if patience <= 0 {
		patience = 10
	}

	return &reduceLROnPlateau{
		factor:       factor,
		patience:     patience,
		threshold:    1e-4,
		learningRate: learningRate,
	}
}

// Step epoch의 학습 loss를 반영한 학습률 반환.
// patience epoch 동안 loss 개선이 없으면 학습률에 factor를 곱함
func (s *reduceLROnPlateau) Step(loss float64) float64 {
	if !s.initialized {
		s.best = loss
		s.initialized = true
		return s.learningRate
	}

	if loss < s.best-s.threshold {
		s.best = loss
		s.badEpochs = 0
	} else {
		s.badEpochs++
		if s.badEpochs >= s.patience {
			s.learningRate *= s.factor
			s.badEpochs = 0
		}
	}

	return s.learningRate
}
