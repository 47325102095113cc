package agent

import xerrors "IVA-Bank/internal/errors"

// CodeAgentStepsExceeded 表示专家在步数上限内没有给出最终答复。
const CodeAgentStepsExceeded xerrors.Code = "AGENT_STEPS_EXCEEDED"

func init() {
	xerrors.Register(CodeAgentStepsExceeded, xerrors.Attributes{
		Message:  "agent did not finish within the step limit",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
}
