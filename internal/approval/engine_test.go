package approval

import (
	"testing"

	"github.com/wrp1979/llama-agent/internal/agent/ports"
)

func TestCheckPermission_Yolo(t *testing.T) {
	e := New("/repo", true)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermBash, ToolName: "bash", Details: "rm -rf /"})
	if st != ports.StateAllow {
		t.Fatalf("yolo mode must allow everything, got %v", st)
	}
}

func TestCheckPermission_DangerousBash(t *testing.T) {
	e := New("/repo", false)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermBash, ToolName: "bash", Details: "rm -rf /tmp"})
	if st != ports.StateAsk {
		t.Fatalf("dangerous bash must ask, got %v", st)
	}
}

func TestCheckPermission_SafeBash(t *testing.T) {
	e := New("/repo", false)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermBash, ToolName: "bash", Details: "git status"})
	if st != ports.StateAllow {
		t.Fatalf("safe bash must allow, got %v", st)
	}
}

func TestCheckPermission_UnknownBashAsks(t *testing.T) {
	e := New("/repo", false)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermBash, ToolName: "bash", Details: "some-custom-tool --flag"})
	if st != ports.StateAsk {
		t.Fatalf("unclassified bash must ask, got %v", st)
	}
}

func TestCheckPermission_FileReadDefaultAllow(t *testing.T) {
	e := New("/repo", false)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermFileRead, ToolName: "read", Details: "/repo/main.go"})
	if st != ports.StateAllow {
		t.Fatalf("file read defaults to allow, got %v", st)
	}
}

func TestCheckPermission_FileWriteDefaultAsk(t *testing.T) {
	e := New("/repo", false)
	st := e.CheckPermission(ports.PermissionRequest{Type: ports.PermFileWrite, ToolName: "write", Details: "/repo/main.go"})
	if st != ports.StateAsk {
		t.Fatalf("file write has no default rule, must ask, got %v", st)
	}
}

func TestApplyResponse_SessionOverridePersists(t *testing.T) {
	e := New("/repo", false)
	req := ports.PermissionRequest{Type: ports.PermFileWrite, ToolName: "write", Details: "/repo/out.txt"}

	allowed := e.ApplyResponse(req, ports.RespAllowAlways, ports.ScopeSession)
	if !allowed {
		t.Fatal("RespAllowAlways must report allowed=true")
	}

	st := e.CheckPermission(req)
	if st != ports.StateAllowSession {
		t.Fatalf("subsequent identical request should hit the session override, got %v", st)
	}
}

func TestApplyResponse_OnceDoesNotPersist(t *testing.T) {
	e := New("/repo", false)
	req := ports.PermissionRequest{Type: ports.PermFileWrite, ToolName: "write", Details: "/repo/out.txt"}

	allowed := e.ApplyResponse(req, ports.RespAllowOnce, ports.ScopeOnce)
	if !allowed {
		t.Fatal("RespAllowOnce must report allowed=true")
	}

	st := e.CheckPermission(req)
	if st != ports.StateAsk {
		t.Fatalf("a once-scoped response must not persist, got %v", st)
	}
}

func TestClearSession_ResetsOverridesAndDoomTail(t *testing.T) {
	e := New("/repo", false)
	req := ports.PermissionRequest{Type: ports.PermFileWrite, ToolName: "write", Details: "/repo/out.txt"}
	e.ApplyResponse(req, ports.RespAllowAlways, ports.ScopeSession)

	e.RecordDispatch("bash", "deadbeef")
	e.RecordDispatch("bash", "deadbeef")

	e.ClearSession()

	if st := e.CheckPermission(req); st != ports.StateAsk {
		t.Fatalf("ClearSession must drop session overrides, got %v", st)
	}
	if tripped := e.RecordDispatch("bash", "deadbeef"); tripped {
		t.Fatal("ClearSession must reset the doom-loop tail")
	}
}

func TestRecordDispatch_TripsOnThirdIdenticalCall(t *testing.T) {
	e := New("/repo", false)
	if tripped := e.RecordDispatch("bash", "hash1"); tripped {
		t.Fatal("first dispatch must not trip")
	}
	if tripped := e.RecordDispatch("bash", "hash1"); tripped {
		t.Fatal("second identical dispatch must not trip")
	}
	if tripped := e.RecordDispatch("bash", "hash1"); !tripped {
		t.Fatal("third identical dispatch must trip the doom-loop gate")
	}
}

func TestRecordDispatch_DifferentArgsResetsStreak(t *testing.T) {
	e := New("/repo", false)
	e.RecordDispatch("bash", "hash1")
	e.RecordDispatch("bash", "hash1")
	if tripped := e.RecordDispatch("bash", "hash2"); tripped {
		t.Fatal("a differing call must reset the streak, not trip")
	}
	if tripped := e.RecordDispatch("bash", "hash2"); tripped {
		t.Fatal("second call of the new streak must not trip yet")
	}
}
