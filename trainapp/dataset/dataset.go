package dataset

import (
	"fmt"
	"image"
	"io"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/types/tensors"
)

// Config 데이터셋 분할 디렉토리 로드 설정정보
type Config struct {
	Dir        string
	Height     int
	Width      int
	BatchSize  int
	NumClasses int

	// Shuffle은 epoch마다 샘플 순서를 섞고, Augment는 배치를 반환할 때마다
	// 랜덤 플립/밝기/명암 변환을 적용
	Shuffle bool
	Augment bool
}

type sample struct {
	path  string
	label int
}

type batch struct {
	inputs *tensors.Tensor
	labels *tensors.Tensor
	err    error
}

// 소비 측보다 먼저 준비해 두는 배치 수
const prefetchDepth = 4

// Dataset 하나의 분할(train/val/test)을 트레이너에 공급하는 train.Dataset 구현.
// 디코딩 된 이미지는 첫 epoch 이후 메모리에 캐시되고, 배치는 백그라운드에서
// 미리 준비
type Dataset struct {
	name string
	cfg  Config

	classNames []string
	samples    []sample

	mu    sync.Mutex
	cache []*image.NRGBA

	rng *rand.Rand

	prefetch chan batch
	stop     chan struct{}
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// New 디렉토리 구조(클래스 별 하위 디렉토리)로부터 데이터셋 생성.
// 하위 디렉토리 수가 설정 된 클래스 수와 다르면 실패
func New(name string, cfg Config) (*Dataset, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("dataset %s: invalid batch size %d", name, cfg.BatchSize)
	}

	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	var classNames []string
	for _, entry := range entries {
		if entry.IsDir() {
			classNames = append(classNames, entry.Name())
		}
	}
	sort.Strings(classNames)

	if len(classNames) != cfg.NumClasses {
		return nil, fmt.Errorf(
			"dataset %s: %d class directories in %s, configured for %d classes",
			name, len(classNames), cfg.Dir, cfg.NumClasses)
	}

	var samples []sample
	for label, class := range classNames {
		files, err := os.ReadDir(path.Join(cfg.Dir, class))
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if !imageExts[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			samples = append(samples, sample{
				path:  path.Join(cfg.Dir, class, file.Name()),
				label: label,
			})
		}
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset %s: no images under %s", name, cfg.Dir)
	}

	return &Dataset{
		name:       name,
		cfg:        cfg,
		classNames: classNames,
		samples:    samples,
		cache:      make([]*image.NRGBA, len(samples)),
		rng:        rand.New(rand.NewSource(int64(len(samples)))),
	}, nil
}

// Name train.Dataset 구현
func (d *Dataset) Name() string {
	return d.name
}

// Yield 다음 배치 반환. epoch가 끝나면 io.EOF
func (d *Dataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if d.prefetch == nil {
		d.start()
	}

	b, ok := <-d.prefetch
	if !ok {
		return nil, nil, nil, io.EOF
	}
	if b.err != nil {
		return nil, nil, nil, b.err
	}

	return d, []*tensors.Tensor{b.inputs}, []*tensors.Tensor{b.labels}, nil
}

// Reset 다음 epoch를 위해 데이터셋을 처음으로 되돌림
func (d *Dataset) Reset() {
	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}
	d.prefetch = nil
}

func (d *Dataset) start() {
	order := make([]int, len(d.samples))
	for i := range order {
		order[i] = i
	}
	if d.cfg.Shuffle {
		d.rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	d.stop = make(chan struct{})
	d.prefetch = make(chan batch, prefetchDepth)

	go d.fill(order, d.rng.Int63(), d.prefetch, d.stop)
}

func (d *Dataset) fill(order []int, seed int64, out chan<- batch, stop <-chan struct{}) {
	defer close(out)

	rng := rand.New(rand.NewSource(seed))
	for begin := 0; begin < len(order); begin += d.cfg.BatchSize {
		end := begin + d.cfg.BatchSize
		if end > len(order) {
			end = len(order)
		}

		select {
		case out <- d.makeBatch(order[begin:end], rng):
		case <-stop:
			return
		}
	}
}

func (d *Dataset) makeBatch(idxs []int, rng *rand.Rand) batch {
	var (
		h    = d.cfg.Height
		w    = d.cfg.Width
		flat = make([]float32, len(idxs)*h*w*3)
		hot  = make([]float32, len(idxs)*d.cfg.NumClasses)
	)

	for i, idx := range idxs {
		img, err := d.load(idx)
		if err != nil {
			return batch{err: err}
		}

		if d.cfg.Augment {
			img = augment(img, rng)
		}

		fillPixels(flat[i*h*w*3:(i+1)*h*w*3], img)
		hot[i*d.cfg.NumClasses+d.samples[idx].label] = 1
	}

	return batch{
		inputs: tensors.FromFlatDataAndDimensions(flat, len(idxs), h, w, 3),
		labels: tensors.FromFlatDataAndDimensions(hot, len(idxs), d.cfg.NumClasses),
	}
}

// load 샘플 디코딩. 리사이즈 된 이미지는 한번 읽은 후 캐시에서 재사용
func (d *Dataset) load(idx int) (*image.NRGBA, error) {
	d.mu.Lock()
	img := d.cache[idx]
	d.mu.Unlock()
	if img != nil {
		return img, nil
	}

	decoded, err := imaging.Open(d.samples[idx].path)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %s: %w", d.name, d.samples[idx].path, err)
	}

	img = toRGB(decoded)
	if img.Bounds().Dx() != d.cfg.Width || img.Bounds().Dy() != d.cfg.Height {
		img = imaging.Resize(img, d.cfg.Width, d.cfg.Height, imaging.Linear)
	}

	d.mu.Lock()
	d.cache[idx] = img
	d.mu.Unlock()

	return img, nil
}

// ClassNames 정렬 된 클래스 이름 목록 반환
func (d *Dataset) ClassNames() []string {
	names := make([]string, len(d.classNames))
	copy(names, d.classNames)
	return names
}

// NumClasses 클래스 수 반환
func (d *Dataset) NumClasses() int {
	return len(d.classNames)
}

// NumSamples 샘플 수 반환
func (d *Dataset) NumSamples() int {
	return len(d.samples)
}

// NumBatches epoch 당 배치 수 반환
func (d *Dataset) NumBatches() int {
	return (len(d.samples) + d.cfg.BatchSize - 1) / d.cfg.BatchSize
}
