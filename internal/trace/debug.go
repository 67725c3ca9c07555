package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/agentkernel/agentkernel/pkg/kernel"
)

// Divergence describes where two traces first diverge.
type Divergence struct {
	InvocationID string
	Field        string
	Expected     string
	Actual       string
}

// Compare returns every point where expected and actual disagree on
// replay-significant behavior. An empty slice means they are
// equivalent.
func Compare(expected ExecutionTrace, actual ExecutionTrace) []Divergence {
	expMap := latestByInvocation(expected)
	actMap := latestByInvocation(actual)

	ids := make([]string, 0, len(expMap)+len(actMap))
	seen := map[string]struct{}{}
	for id := range expMap {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	for id := range actMap {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]Divergence, 0)
	for _, id := range ids {
		e, eok := expMap[id]
		a, aok := actMap[id]
		if !eok {
			out = append(out, Divergence{InvocationID: id, Field: "missing_expected", Actual: a.AgentID})
			continue
		}
		if !aok {
			out = append(out, Divergence{InvocationID: id, Field: "missing_actual", Expected: e.AgentID})
			continue
		}
		if e.AgentID != a.AgentID {
			out = append(out, Divergence{InvocationID: id, Field: "agent_id", Expected: e.AgentID, Actual: a.AgentID})
		}
		if e.Result.Success != a.Result.Success {
			out = append(out, Divergence{InvocationID: id, Field: "success", Expected: fmt.Sprint(e.Result.Success), Actual: fmt.Sprint(a.Result.Success)})
		}
		if !e.Result.Success && !a.Result.Success {
			ec, ac := errorCode(e.Result), errorCode(a.Result)
			if ec != ac {
				out = append(out, Divergence{InvocationID: id, Field: "error_code", Expected: ec, Actual: ac})
			}
			continue
		}
		if e.RequestID != a.RequestID {
			out = append(out, Divergence{InvocationID: id, Field: "request_id", Expected: e.RequestID, Actual: a.RequestID})
		}
		eh, ah := dataHash(e.Result.Data), dataHash(a.Result.Data)
		if eh != ah {
			out = append(out, Divergence{InvocationID: id, Field: "data_hash", Expected: eh, Actual: ah})
		}
	}
	return out
}

// FormatDivergence renders div as a human-readable multi-line report.
func FormatDivergence(div []Divergence) string {
	if len(div) == 0 {
		return "no divergence detected"
	}
	msg := "trace divergence detected:\n"
	for _, d := range div {
		msg += fmt.Sprintf("- invocation=%s field=%s expected=%q actual=%q\n", d.InvocationID, d.Field, d.Expected, d.Actual)
	}
	return msg
}

func latestByInvocation(tr ExecutionTrace) map[string]Step {
	m := make(map[string]Step)
	for _, s := range tr.Steps {
		prev, ok := m[s.InvocationID]
		if !ok || s.Attempt >= prev.Attempt {
			m[s.InvocationID] = s
		}
	}
	return m
}

func errorCode(r kernel.Result) string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

func dataHash(data any) string {
	b, err := json.Marshal(data)
	if err != nil {
		b = []byte(fmt.Sprint(data))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
