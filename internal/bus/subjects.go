package bus

// Subject and header constants for the CODEFORGE JetStream stream, carried
// verbatim from the original worker's consumer/_subjects.py.
const (
	StreamName = "CODEFORGE"

	HeaderRequestID  = "X-Request-ID"
	HeaderRetryCount = "Retry-Count"

	MaxRetries = 3
)

// StreamSubjects are the wildcard subjects the stream is declared with.
var StreamSubjects = []string{
	"tasks.>",
	"agents.>",
	"runs.>",
	"context.>",
	"repomap.>",
	"retrieval.>",
	"graph.>",
	"conversation.>",
	"benchmark.>",
	"evaluation.>",
	"memory.>",
	"handoff.>",
}

// Concrete request subjects, per spec.md §4.1's subject table.
const (
	SubjectAgent = "tasks.agent.*"

	SubjectRunStart            = "runs.start"
	SubjectRunComplete         = "runs.complete"
	SubjectRunToolcallRequest  = "runs.toolcall.request"
	SubjectRunToolcallResponse = "runs.toolcall.response"
	SubjectRunToolcallResult   = "runs.toolcall.result"
	SubjectRunOutput           = "runs.output"
	SubjectRunHeartbeat        = "runs.heartbeat"
	SubjectRunCancel           = "runs.cancel"

	SubjectQualityGateRequest = "runs.qualitygate.request"
	SubjectQualityGateResult  = "runs.qualitygate.result"

	SubjectRepoMapRequest = "repomap.generate.request"
	SubjectRepoMapResult  = "repomap.generate.result"

	SubjectRetrievalIndexRequest  = "retrieval.index.request"
	SubjectRetrievalIndexResult   = "retrieval.index.result"
	SubjectRetrievalSearchRequest = "retrieval.search.request"
	SubjectRetrievalSearchResult  = "retrieval.search.result"
	SubjectSubagentSearchRequest  = "retrieval.subagent.request"
	SubjectSubagentSearchResult   = "retrieval.subagent.result"

	SubjectGraphBuildRequest  = "graph.build.request"
	SubjectGraphBuildResult   = "graph.build.result"
	SubjectGraphSearchRequest = "graph.search.request"
	SubjectGraphSearchResult  = "graph.search.result"

	SubjectConversationRunStart    = "conversation.run.start"
	SubjectConversationRunComplete = "conversation.run.complete"

	SubjectMemoryStore        = "memory.store"
	SubjectMemoryRecall       = "memory.recall"
	SubjectMemoryRecallResult = "memory.recall.result"

	SubjectHandoffRequest = "handoff.request"
	SubjectHandoffExecute = "handoff.execute"

	SubjectEvalGemmasRequest = "evaluation.gemmas.request"
	SubjectEvalGemmasResult  = "evaluation.gemmas.result"
)
