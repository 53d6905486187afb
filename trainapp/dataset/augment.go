package dataset

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
)

const (
	// [-50%, +50%] 범위의 랜덤 밝기 조정
	maxBrightnessPct = 50
	// [-90%, +90%] 범위의 랜덤 명암 조정
	maxContrastPct = 90
)

// augment 학습용 배치에 적용되는 랜덤 변환.
// 캐시 된 원본은 그대로 두고 변환 된 복사본을 반환
func augment(img *image.NRGBA, rng *rand.Rand) *image.NRGBA {
	if rng.Intn(2) == 1 {
		img = imaging.FlipH(img)
	}
	if rng.Intn(2) == 1 {
		img = imaging.FlipV(img)
	}

	img = imaging.AdjustBrightness(img, (rng.Float64()*2-1)*maxBrightnessPct)
	img = imaging.AdjustContrast(img, (rng.Float64()*2-1)*maxContrastPct)

	return img
}

// toRGB 단일 채널(greyscale) 이미지를 채널 복제로 3채널로 변환.
// 이미 RGB인 경우 복사본만 생성
func toRGB(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// fillPixels 이미지의 RGB 픽셀값([0, 255])을 float32 버퍼에 기록
func fillPixels(dst []float32, img *image.NRGBA) {
	var (
		bounds = img.Bounds()
		pos    int
	)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			offset := img.PixOffset(x, y)
			dst[pos] = float32(img.Pix[offset])
			dst[pos+1] = float32(img.Pix[offset+1])
			dst[pos+2] = float32(img.Pix[offset+2])
			pos += 3
		}
	}
}
