package evaluation

import "testing"

func TestNotImplementedResultCarriesRunAndProjectID(t *testing.T) {
	result := notImplementedResult(Request{RunID: "run-1", ProjectID: "proj-1"})
	if result.Status != StatusNotImplemented {
		t.Errorf("status = %q, want %q", result.Status, StatusNotImplemented)
	}
	if result.RunID != "run-1" || result.ProjectID != "proj-1" {
		t.Errorf("result = %+v, expected run/project ids carried through", result)
	}
	if result.Reason == "" {
		t.Errorf("expected a non-empty reason")
	}
}
