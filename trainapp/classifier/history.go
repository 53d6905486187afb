package classifier

// History 가장 최근 학습의 epoch 별 기록.
// Train을 다시 호출하면 이전 기록은 덮어쓰기 됨
type History struct {
	Epochs             int       `yaml:"epochs" json:"epochs"`
	TrainLoss          []float32 `yaml:"trainLoss" json:"trainLoss"`
	TrainAccuracy      []float32 `yaml:"trainAccuracy" json:"trainAccuracy"`
	ValidationLoss     []float32 `yaml:"validationLoss" json:"validationLoss"`
	ValidationAccuracy []float32 `yaml:"validationAccuracy" json:"validationAccuracy"`
	LearningRates      []float64 `yaml:"learningRates" json:"learningRates"`
}

func (h *History) record(trainLoss, trainAcc, valLoss, valAcc float32, learningRate float64) {
	h.Epochs++
	h.TrainLoss = append(h.TrainLoss, trainLoss)
	h.TrainAccuracy = append(h.TrainAccuracy, trainAcc)
	h.ValidationLoss = append(h.ValidationLoss, valLoss)
	h.ValidationAccuracy = append(h.ValidationAccuracy, valAcc)
	h.LearningRates = append(h.LearningRates, learningRate)
}

// bestTracker 검증 정확도의 최고값 추적. 체크포인트 저장 여부 판단에 사용
type bestTracker struct {
	best        float32
	initialized bool
}

// Improved 최초 관측과 최고값 갱신시에만 true
func (b *bestTracker) Improved(acc float32) bool {
	if b.initialized && acc <= b.best {
		return false
	}

	b.best = acc
	b.initialized = true

	return true
}

// BestValidationAccuracy 최고 검증 정확도와 해당 epoch(0부터 시작) 반환.
// 기록이 없으면 epoch는 -1
func (h *History) BestValidationAccuracy() (best float32, epoch int) {
	epoch = -1
	for i, acc := range h.ValidationAccuracy {
		if epoch < 0 || acc > best {
			best = acc
			epoch = i
		}
	}
	return best, epoch
}
