package errors

import (
	"go.lsp.dev/protocol"
)

// lspSource is reported as the diagnostic source to language clients
const lspSource = "sugar"

// ToProtocol converts diagnostics into LSP diagnostics for language-service
// front ends. LSP positions are 0-indexed; ours are 1-indexed.
func (el ErrorList) ToProtocol() []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(el))
	for _, e := range el {
		line := zeroBased(e.Location.Line)
		col := zeroBased(e.Location.Column)
		out = append(out, protocol.Diagnostic{
			Range: protocol.Range{
				Start: protocol.Position{Line: line, Character: col},
				End:   protocol.Position{Line: line, Character: col},
			},
			Severity: convertSeverity(e.Severity),
			Code:     string(e.Code),
			Source:   lspSource,
			Message:  e.Message,
		})
	}
	return out
}

func convertSeverity(severity ErrorSeverity) protocol.DiagnosticSeverity {
	switch severity {
	case SeverityError:
		return protocol.DiagnosticSeverityError
	case SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	case SeverityInfo:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityHint
	}
}

func zeroBased(n int) uint32 {
	if n <= 1 {
		return 0
	}
	return uint32(n - 1)
}
