package main

import (
	"flag"
	"path"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/classifier"
	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/constants"
)

var (
	flagData     = flag.String("data", "/thermal/dataset", "Dataset root with train/val/test splits")
	flagModel    = flag.String("model", "/thermal/models/thermal", "Model bundle directory")
	flagClasses  = flag.Int("classes", constants.DefaultNumClasses, "Number of classification categories")
	flagEpochs   = flag.Int("epochs", constants.TrainEpochs, "Training epochs per pass")
	flagFineTune = flag.Bool("finetune", true, "Run the fine-tuning pass after initial training")
	flagStart    = flag.Int("startlayer", constants.FineTuneStartLayer, "Backbone layer index to start fine-tuning from")
	flagPlot     = flag.String("plot", "", "Training curves output file (default: <model>-curves.json)")
	flagWeights  = flag.String("weights", "", "Cache directory for pretrained backbone weights")
)

// defaultPlotFile 모델 번들 디렉토리는 저장시 초기화되므로
// 곡선 파일의 기본 위치는 번들 밖의 형제 파일
func defaultPlotFile(modelPath string) string {
	return path.Clean(modelPath) + "-curves.json"
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	plotFile := *flagPlot
	if plotFile == "" {
		plotFile = defaultPlotFile(*flagModel)
	}

	err := exceptions.TryCatch[error](func() {
		cfg := classifier.DefaultConfig(
			path.Join(*flagData, "train"),
			path.Join(*flagData, "val"),
			path.Join(*flagData, "test"))
		cfg.NumClasses = *flagClasses
		if *flagWeights != "" {
			cfg.WeightsDir = *flagWeights
		}

		c := must.M1(classifier.New(cfg))

		must.M(c.BuildModel())
		must.M(c.Train(*flagEpochs, *flagModel))
		must.M(c.PlotTrainingHistory(plotFile))

		if *flagFineTune {
			must.M(c.FineTune(*flagStart))
			must.M(c.Train(*flagEpochs, *flagModel))
			must.M(c.PlotTrainingHistory(plotFile))
		}

		loss, accuracy := must.M2(c.Evaluate("val"))
		klog.Infof("Validation: loss=%.4f accuracy=%.4f", loss, accuracy)

		loss, accuracy = must.M2(c.Evaluate("test"))
		klog.Infof("Test: loss=%.4f accuracy=%.4f", loss, accuracy)

		must.M(c.Save(*flagModel))
		klog.Infof("Model saved in %s", *flagModel)
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
	}
}
