package protocol

import (
	"encoding/json"
	"reflect"
	"testing"
)

// roundTrip marshals v, unmarshals into a fresh zero value of the same type,
// and asserts deep equality — the "serializing and deserializing any
// protocol payload yields an equal value" property from spec §8.
func roundTrip[T any](t *testing.T, v T) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(v, out) {
		t.Fatalf("round-trip mismatch:\n  in:  %#v\n  out: %#v", v, out)
	}
}

func TestRoundTripToolCallReq(t *testing.T) {
	req := ToolCallReq{
		AgentCallData: AgentCallData{Agent: "a1", ReqID: NewReqID()},
		Computer:      "c1",
		ToolName:      "echo",
		Params:        json.RawMessage(`{"text":"hi"}`),
		Timeout:       5,
	}
	roundTrip(t, req)
}

func TestRoundTripGetConfigRet(t *testing.T) {
	def := "8080"
	ret := GetConfigRet{
		Servers: map[string]ServerConfig{
			"echo_srv": {
				Name:      "echo_srv",
				Transport: TransportStdio,
				Stdio: &StdioParams{
					Command: "npx",
					Args:    []string{"echo-mcp"},
				},
			},
		},
		Inputs: []InputDef{
			{ID: "PORT", Kind: InputPromptString, Default: &def},
		},
		ReqID: NewReqID(),
	}
	roundTrip(t, ret)
}

func TestRoundTripSessionInfo(t *testing.T) {
	s := SessionInfo{Role: RoleAgent, Name: "A1", OfficeID: "office-1"}
	roundTrip(t, s)
}

func TestRoundTripCallToolResult(t *testing.T) {
	r := TextResult("hi")
	roundTrip(t, r)
	e := ErrorResult("boom")
	roundTrip(t, e)
}

func TestValidateComputerOutbound(t *testing.T) {
	ok := []string{EventJoinOffice, EventLeaveOffice, EventUpdateConfig, EventUpdateToolList, EventUpdateDesktop}
	for _, e := range ok {
		if err := ValidateComputerOutbound(e); err != nil {
			t.Errorf("expected %q to be allowed, got %v", e, err)
		}
	}
	bad := []string{NotifyEnterOffice, EventToolCall, "garbage"}
	for _, e := range bad {
		if err := ValidateComputerOutbound(e); err == nil {
			t.Errorf("expected %q to be rejected", e)
		}
	}
}
