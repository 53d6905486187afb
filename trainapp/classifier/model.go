package classifier

import (
	"sort"
	"strings"

	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/models/inceptionv3"
)

// 백본과 출력층의 변수 scope
const (
	backboneScope = "backbone"
	readoutScope  = "readout"
)

// normalizations 모델 번들 재구성에 필요한 전처리 함수 레지스트리.
// config.yaml의 normalization 이름으로 참조됨
var normalizations = map[string]func(*graph.Node) *graph.Node{
	"minus-one-to-one": minusOneToOne,
}

// minusOneToOne [0, 255]의 이미지값을 [-1, 1]로 조정: (image / 127.5) - 1
func minusOneToOne(images *graph.Node) *graph.Node {
	return graph.AddScalar(graph.DivScalar(images, 127.5), -1)
}

// modelGraph 정규화 → 사전학습 InceptionV3 백본(mean pooling) → dense 출력층.
// 출력은 클래스 별 logits
func (c *Classifier) modelGraph(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	images := normalizations[c.cfg.Normalization](inputs[0])

	backbone := inceptionv3.BuildGraph(ctx.In(backboneScope), images).
		SetPooling(inceptionv3.MeanPooling).
		Trainable(c.backboneUnfrozen)
	// WeightsDir가 비어 있으면 체크포인트에서 복원되는 경우로,
	// 가중치 파일 없이 재구성
	if c.cfg.WeightsDir != "" {
		backbone = backbone.PreTrained(c.cfg.WeightsDir)
	}
	features := backbone.Done()

	logits := layers.DenseWithBias(ctx.In(readoutScope), features, c.cfg.NumClasses)

	return []*graph.Node{logits}
}

// BackboneLayers 백본 레이어의 변수 scope 목록을 결정적 순서로 반환
func (c *Classifier) BackboneLayers() []string {
	if c.ctx == nil {
		return nil
	}

	prefix := context.ScopeSeparator + backboneScope
	seen := make(map[string]bool)
	var scopes []string

	c.ctx.EnumerateVariables(func(v *context.Variable) {
		scope := v.Scope()
		if !strings.HasPrefix(scope, prefix) {
			return
		}
		if !seen[scope] {
			seen[scope] = true
			scopes = append(scopes, scope)
		}
	})
	sort.Strings(scopes)

	return scopes
}

// trainableMask 레이어 순번 기준 동결 여부 계산: startLayer 이전 레이어는
// 동결을 유지하고 이후 레이어는 학습 가능
func trainableMask(layerScopes []string, startLayer int) map[string]bool {
	mask := make(map[string]bool, len(layerScopes))
	for i, scope := range layerScopes {
		mask[scope] = i >= startLayer
	}
	return mask
}

// BackboneTrainable 백본 레이어 별 학습 가능 여부 반환
func (c *Classifier) BackboneTrainable() []bool {
	layerScopes := c.BackboneLayers()

	trainable := make(map[string]bool, len(layerScopes))
	c.ctx.EnumerateVariables(func(v *context.Variable) {
		if v.Trainable {
			trainable[v.Scope()] = true
		}
	})

	out := make([]bool, len(layerScopes))
	for i, scope := range layerScopes {
		out[i] = trainable[scope]
	}
	return out
}
