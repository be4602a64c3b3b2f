package models

// BlockKind identifies the behavior of a block. The set of kinds is closed;
// a document containing any other tag is rejected before compilation.
type BlockKind string

const (
	KindSum              BlockKind = "sum"
	KindMultiply         BlockKind = "multiply"
	KindInputPort        BlockKind = "input_port"
	KindOutputPort       BlockKind = "output_port"
	KindSource           BlockKind = "source"
	KindScale            BlockKind = "scale"
	KindTransferFunction BlockKind = "transfer_function"
	KindLookup1D         BlockKind = "lookup_1d"
	KindLookup2D         BlockKind = "lookup_2d"
	KindMatrixMultiply   BlockKind = "matrix_multiply"
	KindMux              BlockKind = "mux"
	KindDemux            BlockKind = "demux"
	KindTrig             BlockKind = "trig"
	KindMagnitude        BlockKind = "magnitude"
	KindCrossProduct     BlockKind = "cross_product"
	KindDotProduct       BlockKind = "dot_product"
	KindIf               BlockKind = "if"
	KindEvaluate         BlockKind = "evaluate"
	KindUnaryMinus       BlockKind = "unary_minus"
	KindAbsoluteValue    BlockKind = "absolute_value"
	KindTranspose        BlockKind = "transpose"
	KindCondition        BlockKind = "condition"
	KindSubsystem        BlockKind = "subsystem"
	KindSheetLabelSink   BlockKind = "sheet_label_sink"
	KindSheetLabelSource BlockKind = "sheet_label_source"
	KindSignalDisplay    BlockKind = "signal_display"
	KindSignalLogger     BlockKind = "signal_logger"
)

// AllKinds lists every valid block kind in a stable order.
var AllKinds = []BlockKind{
	KindSum, KindMultiply, KindInputPort, KindOutputPort, KindSource,
	KindScale, KindTransferFunction, KindLookup1D, KindLookup2D,
	KindMatrixMultiply, KindMux, KindDemux, KindTrig, KindMagnitude,
	KindCrossProduct, KindDotProduct, KindIf, KindEvaluate, KindUnaryMinus,
	KindAbsoluteValue, KindTranspose, KindCondition, KindSubsystem,
	KindSheetLabelSink, KindSheetLabelSource, KindSignalDisplay,
	KindSignalLogger,
}

// IsValidKind reports whether kind is a member of the closed enumeration.
func IsValidKind(kind BlockKind) bool {
	for _, k := range AllKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsStructural reports whether a kind exists only to shape the diagram and is
// eliminated by flattening (subsystems and sheet labels contribute no runtime
// code of their own).
func (k BlockKind) IsStructural() bool {
	switch k {
	case KindSubsystem, KindSheetLabelSink, KindSheetLabelSource:
		return true
	}
	return false
}

// IsPresentation reports whether a kind observes a signal without computing
// anything. Presentation kinds take part in flattening and ordering but emit
// no code and own no state.
func (k BlockKind) IsPresentation() bool {
	return k == KindSignalDisplay || k == KindSignalLogger
}

// IsPort reports whether a kind is a model boundary port.
func (k BlockKind) IsPort() bool {
	return k == KindInputPort || k == KindOutputPort
}
