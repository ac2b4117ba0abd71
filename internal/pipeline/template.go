package pipeline

import (
	"encoding/json"

	"github.com/gorggle/lipread-processing-service/internal/domain/entity"
)

// ReferenceTemplate is the canonical ("mean face") landmark geometry that
// every detected face is registered to. Loaded once at startup, read-only
// afterwards, safe for unsynchronized concurrent reads.
type ReferenceTemplate struct {
	Landmarks entity.LandmarkSet
	Size      int
}

type templateFile struct {
	Size   int          `json:"size"`
	Points [][2]float32 `json:"points"`
}

// ParseTemplate decodes a reference template from its JSON form:
// {"size": 256, "points": [[x, y], ... 68 entries ...]}.
func ParseTemplate(data []byte) (*ReferenceTemplate, error) {
	var tf templateFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, Wrap(KindTemplateUnavailable, err, "decode template")
	}
	if tf.Size <= 0 {
		return nil, Errorf(KindTemplateUnavailable, "template size %d is not positive", tf.Size)
	}
	if len(tf.Points) != entity.LandmarkCount {
		return nil, Errorf(KindTemplateUnavailable, "template has %d points, want %d", len(tf.Points), entity.LandmarkCount)
	}

	tpl := &ReferenceTemplate{Size: tf.Size}
	limit := float32(tf.Size)
	for i, p := range tf.Points {
		if p[0] < 0 || p[0] >= limit || p[1] < 0 || p[1] >= limit {
			return nil, Errorf(KindTemplateUnavailable, "template point %d (%.1f, %.1f) outside [0, %d)", i, p[0], p[1], tf.Size)
		}
		tpl.Landmarks[i] = entity.Point{X: p[0], Y: p[1]}
	}

	if degenerate(tpl.Landmarks) {
		return nil, Errorf(KindTemplateUnavailable, "template landmarks are degenerate")
	}
	return tpl, nil
}

// ScaledTo returns the template rescaled to a different canonical size.
// The receiver is returned unchanged when sizes already match.
func (t *ReferenceTemplate) ScaledTo(size int) *ReferenceTemplate {
	if size == t.Size {
		return t
	}
	factor := float32(size) / float32(t.Size)
	out := &ReferenceTemplate{Size: size}
	for i, p := range t.Landmarks {
		out.Landmarks[i] = entity.Point{X: p.X * factor, Y: p.Y * factor}
	}
	return out
}

// degenerate reports whether fewer than 3 distinct points exist, which
// makes a similarity transform unrecoverable.
func degenerate(ls entity.LandmarkSet) bool {
	distinct := make(map[entity.Point]struct{}, len(ls))
	for _, p := range ls {
		distinct[p] = struct{}{}
		if len(distinct) >= 3 {
			return false
		}
	}
	return true
}
