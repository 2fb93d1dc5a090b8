package sentiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVader_Polarity(t *testing.T) {
	v := NewVader()

	assert.Greater(t, v.Polarity("Profits surged and the outlook is excellent"), 0.5)
	assert.Less(t, v.Polarity("The company reported a terrible loss"), -0.3)
	assert.InDelta(t, 0.0, v.Polarity("The meeting is on Tuesday"), 1e-9)
	assert.InDelta(t, 0.0, v.Polarity(""), 1e-9)
}
