package constants

const (
	DefaultModelName string = "thermal"

	// Thermal frames are 320x240; training resizes them down keeping the
	// aspect ratio.
	ImageHeight int = 75
	ImageWidth  int = ImageHeight * 320 / 240

	DefaultNumClasses int = 12
	DefaultBatchSize  int = 32

	TrainEpochs int = 40

	LearningRate         float64 = 1e-3
	FineTuneLearningRate float64 = 1e-4

	// Backbone layers with ordinal >= FineTuneStartLayer are unfrozen by
	// the default fine-tuning pass.
	FineTuneStartLayer int = 86

	PlateauFactor   float64 = 0.1
	PlateauPatience int     = 10

	ConfigFileName string = "config.yaml"
	LabelsFileName string = "labels.txt"
)
