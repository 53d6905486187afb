package constants

const (
	DefaultModelName string = "default"

	ModelsPath string = "/thermal/models"
	ImagesPath string = "/thermal/images"

	DefaultMultiClassMax int = 5
	TrainEpochs          int = 10
)
