package workflow

// Step is the sub-state of a processing job
type Step string

const (
	StepNone         Step = ""
	StepFrameExtract Step = "frame_extract"
	StepDetect       Step = "detect"
	StepOCR          Step = "ocr"
	StepClassify     Step = "classify"
	StepExportReady  Step = "export_ready"
)

var stepPct = map[Step]int{
	StepNone:         0,
	StepFrameExtract: 10,
	StepDetect:       30,
	StepOCR:          60,
	StepClassify:     80,
	StepExportReady:  100,
}

// Pct returns the progress percentage reported on entry to the step
func (s Step) Pct() int {
	return stepPct[s]
}

// IsValid returns true for known steps
func (s Step) IsValid() bool {
	_, ok := stepPct[s]
	return ok
}

// After reports whether s comes strictly after other in pipeline order
func (s Step) After(other Step) bool {
	return s.Pct() > other.Pct()
}

// String returns the string representation of the step
func (s Step) String() string {
	return string(s)
}
