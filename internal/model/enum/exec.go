package enum

// ExecType describes the order-state change an execution report carries.
type ExecType uint8

const (
	_exec_type_beg ExecType = iota
	ExecTypeNew
	ExecTypeFill
	ExecTypePartialFill
	ExecTypeCancelled
	ExecTypeRejected
	_exec_type_end
)

func (e ExecType) IsAvailable() bool {
	return e > _exec_type_beg && e < _exec_type_end
}

func (e ExecType) String() string {
	switch e {
	case ExecTypeNew:
		return "NEW"
	case ExecTypeFill:
		return "FILL"
	case ExecTypePartialFill:
		return "PARTIAL_FILL"
	case ExecTypeCancelled:
		return "CANCELLED"
	case ExecTypeRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// ContingentType describes an exit spec attached to a bracket parent.
type ContingentType uint8

const (
	_contingent_type_beg ContingentType = iota
	ContingentTakeProfit
	ContingentStopLoss
	ContingentTrailingStop
	_contingent_type_end
)

func (c ContingentType) IsAvailable() bool {
	return c > _contingent_type_beg && c < _contingent_type_end
}

func (c ContingentType) String() string {
	switch c {
	case ContingentTakeProfit:
		return "TAKE_PROFIT"
	case ContingentStopLoss:
		return "STOP_LOSS"
	case ContingentTrailingStop:
		return "TRAILING_STOP"
	default:
		return "UNKNOWN"
	}
}
