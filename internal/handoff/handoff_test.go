package handoff

import "testing"

func TestValidateRequiresRunIDAndToAgent(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		ok   bool
	}{
		{"missing run id", Request{ToAgentID: "agent-2"}, false},
		{"missing to agent", Request{RunID: "run-1"}, false},
		{"valid", Request{RunID: "run-1", ToAgentID: "agent-2"}, true},
	}
	for _, c := range cases {
		err := validate(c.req)
		if (err == nil) != c.ok {
			t.Errorf("%s: validate() error = %v, want ok=%v", c.name, err, c.ok)
		}
	}
}

func TestToExecuteMessageCarriesAllFields(t *testing.T) {
	req := Request{
		RunID: "run-1", ProjectID: "proj-1", FromAgentID: "agent-1", ToAgentID: "agent-2",
		Reason: "needs specialist", Context: map[string]any{"step": 3.0},
	}
	msg := toExecuteMessage(req)
	if msg.RunID != req.RunID || msg.ToAgentID != req.ToAgentID || msg.Reason != req.Reason {
		t.Errorf("toExecuteMessage() = %+v, dropped fields from %+v", msg, req)
	}
	if msg.Context["step"] != 3.0 {
		t.Errorf("expected context to be carried through, got %+v", msg.Context)
	}
}
