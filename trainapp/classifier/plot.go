package classifier

import (
	"encoding/json"
	"os"
	"time"

	"k8s.io/klog/v2"
)

// PlotType plot 종류
type PlotType string

// TrainingCurves epoch 별 loss/accuracy 곡선
const TrainingCurves PlotType = "training_curves"

// DataPoint 곡선의 한 점
type DataPoint struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

// SeriesData 하나의 곡선
type SeriesData struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data []DataPoint `json:"data"`
}

// PlotConfig 축/범례 설정
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	ShowLegend bool   `json:"show_legend"`
	ShowGrid   bool   `json:"show_grid"`
}

// PlotData plot 사이드카 서비스가 소비하는 plot 기술 포맷
type PlotData struct {
	PlotType  PlotType     `json:"plot_type"`
	Title     string       `json:"title"`
	Timestamp time.Time    `json:"timestamp"`
	ModelName string       `json:"model_name"`
	Series    []SeriesData `json:"series"`
	Config    PlotConfig   `json:"config"`
}

func curve(name string, values []float32) SeriesData {
	s := SeriesData{
		Name: name,
		Type: "line",
	}
	for epoch, v := range values {
		s.Data = append(s.Data, DataPoint{X: epoch, Y: float64(v)})
	}
	return s
}

func trainingCurvePlots(modelName string, h *History) []PlotData {
	now := time.Now()

	return []PlotData{
		{
			PlotType:  TrainingCurves,
			Title:     "Model Loss",
			Timestamp: now,
			ModelName: modelName,
			Series: []SeriesData{
				curve("Training Loss", h.TrainLoss),
				curve("Validation Loss", h.ValidationLoss),
			},
			Config: PlotConfig{
				XAxisLabel: "Epoch",
				YAxisLabel: "Loss",
				ShowLegend: true,
				ShowGrid:   true,
			},
		},
		{
			PlotType:  TrainingCurves,
			Title:     "Model Accuracy",
			Timestamp: now,
			ModelName: modelName,
			Series: []SeriesData{
				curve("Training Accuracy", h.TrainAccuracy),
				curve("Validation Accuracy", h.ValidationAccuracy),
			},
			Config: PlotConfig{
				XAxisLabel: "Epoch",
				YAxisLabel: "Accuracy",
				ShowLegend: true,
				ShowGrid:   true,
			},
		},
	}
}

// PlotTrainingHistory 가장 최근 학습의 loss/accuracy 곡선을 plot 기술
// 파일로 기록. 학습 이력이 없으면 경고만 남기고 아무것도 생성하지 않음
func (c *Classifier) PlotTrainingHistory(file string) error {
	if c.history == nil {
		klog.Warning("No training history available. Train the model first.")
		return nil
	}

	plots := trainingCurvePlots(c.cfg.Name, c.history)
	encoded, err := json.MarshalIndent(plots, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(file, encoded, 0644)
}
