package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobPercentages(t *testing.T) {
	var got []Update
	job := NewJob(FuncReporter(func(u Update) { got = append(got, u) }), "job-1", 4)
	job.Step(StageTrim)
	job.Step(StageEnhance)
	job.Step(StageEffects)
	job.Step(StageNormalize)
	job.Finish("done")

	require.Len(t, got, 5)
	assert.Equal(t, []float64{25, 50, 75, 100, 100}, []float64{got[0].Percent, got[1].Percent, got[2].Percent, got[3].Percent, got[4].Percent})
	assert.Equal(t, StageDone, got[4].Stage)
	for _, u := range got {
		assert.Equal(t, "job-1", u.JobID)
		assert.False(t, u.Timestamp.IsZero())
	}
}

func TestChannelReporterDropsWhenFull(t *testing.T) {
	ch := make(chan Update, 1)
	r := NewChannelReporter(ch)
	r.Report(Update{Stage: StageDecode})
	r.Report(Update{Stage: StageEncode})

	require.Len(t, ch, 1)
	u := <-ch
	assert.Equal(t, StageDecode, u.Stage)
	assert.False(t, u.Timestamp.IsZero())
}

func TestMultiReporterFansOut(t *testing.T) {
	var a, b int
	m := NewMultiReporter(FuncReporter(func(Update) { a++ }))
	m.Add(FuncReporter(func(Update) { b++ }))
	NewJob(m, "j", 0).Finish("")
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
	NewJob(nil, "j", 1).Step(StageTrim)
}
