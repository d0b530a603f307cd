package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJob_HasPayload(t *testing.T) {
	t.Parallel()

	assert.False(t, (&Job{}).HasPayload())
	assert.False(t, (&Job{InputImages: [][]byte{nil, {}}}).HasPayload())
	assert.True(t, (&Job{Prompt: "一只橘猫"}).HasPayload())
	assert.True(t, (&Job{InputImages: [][]byte{{0x89, 0x50}}}).HasPayload())
}

func TestTimeoutBudget_Unlimited(t *testing.T) {
	t.Parallel()

	assert.True(t, TimeoutBudget{ReadTimeout: 0}.Unlimited())
	assert.True(t, TimeoutBudget{ReadTimeout: -time.Second}.Unlimited())
	assert.False(t, TimeoutBudget{ReadTimeout: 10 * time.Second}.Unlimited())
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	results := []JobResult{
		{Index: 0, State: JobSucceeded, Success: true},
		{Index: 1, State: JobFailed},
		{Index: 2, State: JobSucceeded, Success: true},
		{Index: 3, State: JobCancelled},
	}

	s := Summarize(results, 1500*time.Millisecond, 4)
	assert.Equal(t, 4, s.TotalRequested)
	assert.Equal(t, 2, s.TotalSucceeded)
	assert.Equal(t, 1, s.TotalFailed)
	assert.Equal(t, 1, s.TotalCancelled)
	assert.Equal(t, 1500*time.Millisecond, s.Elapsed)
}
