package node

// statusKind discriminates ProcessStatus values.
type statusKind uint8

const (
	statusClearAllOutputs statusKind = iota
	statusBypass
	statusOutputsModified
)

// maskKind discriminates the optional mask on an outputs-modified
// status.
type maskKind uint8

const (
	maskNone maskKind = iota
	maskSilence
	maskConstant
)

// ProcessStatus is what a processor reports about its output buffers.
type ProcessStatus struct {
	kind statusKind
	mk   maskKind
	mask uint64
}

// ClearAllOutputs means the node produced no audio. The engine clears
// (or skips clearing, when already clear) every output buffer.
func ClearAllOutputs() ProcessStatus {
	return ProcessStatus{kind: statusClearAllOutputs}
}

// Bypass means input channels should be copied through to output
// channels one to one; extra outputs are cleared.
func Bypass() ProcessStatus {
	return ProcessStatus{kind: statusBypass}
}

// OutputsModified means the node wrote all of its output buffers.
func OutputsModified() ProcessStatus {
	return ProcessStatus{kind: statusOutputsModified}
}

// OutputsModifiedSilence is OutputsModified with a hint marking output
// channels the node left silent.
func OutputsModifiedSilence(m SilenceMask) ProcessStatus {
	return ProcessStatus{kind: statusOutputsModified, mk: maskSilence, mask: uint64(m)}
}

// OutputsModifiedConstant is OutputsModified with a hint marking output
// channels the node filled with a constant value.
func OutputsModifiedConstant(m ConstantMask) ProcessStatus {
	return ProcessStatus{kind: statusOutputsModified, mk: maskConstant, mask: uint64(m)}
}

// IsClearAllOutputs reports whether the status is ClearAllOutputs.
func (s ProcessStatus) IsClearAllOutputs() bool { return s.kind == statusClearAllOutputs }

// IsBypass reports whether the status is Bypass.
func (s ProcessStatus) IsBypass() bool { return s.kind == statusBypass }

// IsOutputsModified reports whether the status is OutputsModified.
func (s ProcessStatus) IsOutputsModified() bool { return s.kind == statusOutputsModified }

// SilenceHint returns the silence mask of an outputs-modified status.
// ok is false when the status carries no silence hint.
func (s ProcessStatus) SilenceHint() (m SilenceMask, ok bool) {
	if s.kind != statusOutputsModified || s.mk != maskSilence {
		return 0, false
	}
	return SilenceMask(s.mask), true
}

// ConstantHint returns the constant mask of an outputs-modified status.
// ok is false when the status carries no constant hint.
func (s ProcessStatus) ConstantHint() (m ConstantMask, ok bool) {
	if s.kind != statusOutputsModified || s.mk != maskConstant {
		return 0, false
	}
	return ConstantMask(s.mask), true
}
