package converter

import (
	"fmt"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

// DecodeTag maps a <tag> record to a value-less tag. The frame, when given,
// belongs to the instance; tags of one name share a single meta.
func DecodeTag(rec cvat.Record, frame *int) (annotation.Tag, error) {
	name, ok := rec.Get("label")
	if !ok || name == "" {
		return annotation.Tag{}, fmt.Errorf("%w: tag without label", ErrMalformedRecord)
	}
	return annotation.Tag{Meta: annotation.NewTagMeta(name), Frame: frame}, nil
}
