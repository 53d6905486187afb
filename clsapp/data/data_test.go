package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileFormat(t *testing.T) {
	assert.Equal(t, "png", fileFormat("sample.PNG"))
	assert.Equal(t, "jpg", fileFormat("boiler.front.jpg"))

	// 확장자가 없어도 실패하지 않음
	assert.Equal(t, "", fileFormat("sample"))
	assert.Equal(t, "", fileFormat(""))
}

func TestValidateSplit(t *testing.T) {
	for _, split := range []string{"train", "val", "test"} {
		assert.NoError(t, validateSplit(split))
	}

	assert.Error(t, validateSplit(""))
	assert.Error(t, validateSplit("validation"))
	assert.Error(t, validateSplit("Train"))
}
