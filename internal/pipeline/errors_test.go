package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemError(t *testing.T) {
	cause := errors.New("boom")
	err := &ItemError{Item: "big.mp4", Stage: StageTranscode, Err: cause}

	assert.Equal(t, "transcode big.mp4: boom", err.Error())
	assert.ErrorIs(t, err, cause)

	var itemErr *ItemError
	wrapped := errors.Join(errors.New("run failed"), err)
	assert.ErrorAs(t, wrapped, &itemErr)
	assert.Equal(t, StageTranscode, itemErr.Stage)
}
