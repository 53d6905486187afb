package classifier

import (
	"bufio"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v2"

	"github.com/harrison-roh/thermal-image-classification-with-transfer-learning/trainapp/constants"
)

// bundleConfig 모델 번들 디렉토리의 config.yaml.
// 체크포인트와 함께 저장되어 모델 재구성에 필요한 모든 정보를 가짐
type bundleConfig struct {
	Name           string   `yaml:"name"`
	InputShape     []int    `yaml:"inputShape"`
	NumClasses     int      `yaml:"numClasses"`
	Normalization  string   `yaml:"normalization"`
	LabelsFile     string   `yaml:"labelsFile"`
	TrainingResult *History `yaml:"trainingResult,omitempty"`
	Description    string   `yaml:"description,omitempty"`
}

func writeBundle(dir string, cfg bundleConfig, labels []string) error {
	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path.Join(dir, constants.ConfigFileName), encoded, 0644); err != nil {
		return err
	}

	fp, err := os.Create(path.Join(dir, cfg.LabelsFile))
	if err != nil {
		return err
	}
	defer fp.Close()

	for _, label := range labels {
		if _, err := fmt.Fprintln(fp, label); err != nil {
			return err
		}
	}

	return nil
}

func readBundle(dir string) (bundleConfig, []string, error) {
	var cfg bundleConfig

	encoded, err := os.ReadFile(path.Join(dir, constants.ConfigFileName))
	if err != nil {
		return cfg, nil, err
	}
	if err := yaml.Unmarshal(encoded, &cfg); err != nil {
		return cfg, nil, err
	}

	if _, ok := normalizations[cfg.Normalization]; !ok {
		return cfg, nil, fmt.Errorf("Unknown normalization in %s: %s", dir, cfg.Normalization)
	}

	fp, err := os.Open(path.Join(dir, cfg.LabelsFile))
	if err != nil {
		return cfg, nil, err
	}
	defer fp.Close()

	var labels []string
	scanner := bufio.NewScanner(fp)
	for scanner.Scan() {
		labels = append(labels, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return cfg, nil, err
	}

	if len(labels) != cfg.NumClasses {
		return cfg, nil, fmt.Errorf(
			"The number of labels(%d) and classes(%d) does not match in %s",
			len(labels), cfg.NumClasses, dir)
	}

	return cfg, labels, nil
}
