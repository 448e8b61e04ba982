package ackparticipant

import (
	"context"
	"testing"

	"pkt.systems/tclib/api"
	"pkt.systems/tclib/participant"
	"pkt.systems/tclib/session"
)

func commitFields(phase api.Phase, extra ...session.Field) []session.Field {
	fields := []session.Field{
		session.Uint32(uint32(phase)),
		session.Uint32(5), session.Uint32(2),
		session.Uint32(uint32(api.ConfigGlobal)), session.String(""),
	}
	return append(fields, extra...)
}

func handle(t *testing.T, engine *participant.Engine, kind api.ServiceKind, fields []session.Field) *session.Buffer {
	t.Helper()
	buf := session.NewBuffer(fields...)
	if err := engine.Handle(context.Background(), kind, buf); err != nil {
		t.Fatalf("%s: %v", kind, err)
	}
	if got := api.ResultCode(buf.Result()); got != api.ResultOK {
		t.Fatalf("%s: result %s", kind, got)
	}
	return buf
}

func TestDriverWritesControllerInfo(t *testing.T) {
	engine := participant.New(participant.Config{})
	ack := New(engine, Config{ControllerType: api.ControllerPFC})
	if err := engine.Register(ack); err != nil {
		t.Fatalf("register: %v", err)
	}
	handle(t, engine, api.ServiceCommitTransaction, commitFields(api.PhaseCommitTransStart))
	buf := handle(t, engine, api.ServiceCommitDriverVoteGlobal, commitFields(api.PhaseCommitDriverVote,
		session.Uint32(2), session.String("c1"), session.String("c2")))

	out := session.Fields(buf.Outputs())
	if out.Count() != 6 {
		t.Fatalf("outputs %+v", out)
	}
	for i, want := range []string{"c1", "c2"} {
		id, err := out.ReadString(i * 3)
		if err != nil || id != want {
			t.Fatalf("controller %d = %q (%v)", i, id, err)
		}
		if resp, _ := out.ReadUint32(i*3 + 1); resp != 0 {
			t.Fatalf("controller %s resp %d", id, resp)
		}
	}
	if got := ack.Counts()["commit_vote"]; got != 1 {
		t.Fatalf("commit_vote count %d", got)
	}
}

func TestPlatformReturnsDriverInfo(t *testing.T) {
	controllers, err := ParseControllers([]string{"ctr-b=vnp", "ctr-a=pfc", "ctr-c=pfc"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	engine := participant.New(participant.Config{})
	ack := New(engine, Config{Controllers: controllers})
	if err := engine.Register(ack); err != nil {
		t.Fatalf("register: %v", err)
	}
	handle(t, engine, api.ServiceNotifySessionConfig, []session.Field{
		session.Uint32(5), session.Uint32(2), session.Uint32(uint32(api.ConfigGlobal)), session.String(""),
	})
	handle(t, engine, api.ServiceCommitTransaction, commitFields(api.PhaseCommitTransStart))
	buf := handle(t, engine, api.ServiceCommitTransaction, commitFields(api.PhaseCommitVote))

	want := session.Fields{
		session.Uint32(2),
		session.Uint32(uint32(api.ControllerPFC)), session.Uint32(2), session.String("ctr-a"), session.String("ctr-c"),
		session.Uint32(uint32(api.ControllerVNP)), session.Uint32(1), session.String("ctr-b"),
	}
	got := buf.Outputs()
	if len(got) != len(want) {
		t.Fatalf("outputs %+v", got)
	}
	for i := range want {
		if got[i].Type != want[i].Type || got[i].Num != want[i].Num || got[i].Str != want[i].Str {
			t.Fatalf("output %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	id := handle(t, engine, api.ServiceGetDriverID, []session.Field{session.String("ctr-b")})
	if out := id.Outputs(); len(out) != 1 || api.ControllerType(out[0].Num) != api.ControllerVNP {
		t.Fatalf("driver id outputs %+v", out)
	}
}

func TestParseControllersErrors(t *testing.T) {
	for _, bad := range []string{"noequals", "=pfc", "c1=unknown", "c1=bogus"} {
		if _, err := ParseControllers([]string{bad}); err == nil {
			t.Fatalf("ParseControllers(%q) accepted", bad)
		}
	}
}
