package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	lines []string
}

func (r *recorder) Debug(format string, args ...any) { r.lines = append(r.lines, "debug") }
func (r *recorder) Info(format string, args ...any)  { r.lines = append(r.lines, "info") }
func (r *recorder) Warn(format string, args ...any)  { r.lines = append(r.lines, "warn") }
func (r *recorder) Error(format string, args ...any) { r.lines = append(r.lines, "error") }

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	var nilRec *recorder
	assert.NotPanics(t, func() {
		OrNop(nilRec).Info("dropped")
	})

	rec := &recorder{}
	OrNop(rec).Info("kept")
	assert.Len(t, rec.lines, 1)
}

func TestMultiFlattensAndFansOut(t *testing.T) {
	a := &recorder{}
	b := &recorder{}
	m := Multi(a, Multi(b, nil))
	m.Warn("x")
	assert.Equal(t, []string{"warn"}, a.lines)
	assert.Equal(t, []string{"warn"}, b.lines)
}

func TestMultiEmptyIsNop(t *testing.T) {
	m := Multi(nil)
	assert.NotPanics(t, func() { m.Error("ignored") })
}
