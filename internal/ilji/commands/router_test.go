package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bdobrica/ilji/internal/ilji/journal"
	"github.com/bdobrica/ilji/internal/ilji/mode"
	"github.com/bdobrica/ilji/internal/ilji/publish"
)

func TestRouter_Parse(t *testing.T) {
	r := NewRouter(Prefix)
	tests := []struct {
		in       string
		wantName string
		wantArgs int
		wantErr  bool
	}{
		{"/저장", "저장", 0, false},
		{"  /모드  ", "모드", 0, false},
		{"/save now please", "save", 2, false},
		{"저장", "", 0, true},
		{"/", "", 0, true},
		{"/ 저장", "", 0, true},
		{"", "", 0, true},
	}
	for _, tt := range tests {
		cmd, err := r.Parse(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrNotACommand) {
				t.Errorf("Parse(%q) err = %v, want ErrNotACommand", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if cmd.Name != tt.wantName || len(cmd.Args) != tt.wantArgs {
			t.Errorf("Parse(%q) = %+v", tt.in, cmd)
		}
	}
}

func TestRouter_RouteAliasesAndUnknown(t *testing.T) {
	r := NewRouter(Prefix)
	var got []string
	r.Register("저장", func(_ context.Context, cmd *Command, _ Invocation) (string, error) {
		got = append(got, cmd.Name)
		return "ok", nil
	}, "save")

	for _, text := range []string{"/저장", "/save", "/SAVE"} {
		reply, err := r.Route(context.Background(), text, Invocation{})
		if err != nil || reply != "ok" {
			t.Errorf("Route(%q) = %q, %v", text, reply, err)
		}
	}
	if len(got) != 3 {
		t.Errorf("handler calls = %v", got)
	}

	_, err := r.Route(context.Background(), "/도움말", Invocation{})
	var unknown *UnknownCommandError
	if !errors.As(err, &unknown) || unknown.Name != "도움말" {
		t.Fatalf("err = %v, want UnknownCommandError", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "저장" {
		t.Errorf("Names = %v", names)
	}
	if !r.IsCommand("/x") || r.IsCommand("안녕") {
		t.Error("IsCommand mismatch")
	}
}

type fakeConvs struct {
	modes *mode.Table
	mu    sync.Mutex
	reset []string
	err   error
}

func (f *fakeConvs) Mode(label string) mode.Mode { return f.modes.Resolve(label) }

func (f *fakeConvs) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, key)
	return f.err
}

type fakeSaver struct {
	mu      sync.Mutex
	targets []publish.Target
	rep     *publish.Report
	err     error
}

func (f *fakeSaver) Save(_ context.Context, t publish.Target) (*publish.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, t)
	return f.rep, f.err
}

func newRouter(convs *fakeConvs, saver *fakeSaver) *Router {
	r := NewRouter(Prefix)
	NewHandlers(convs, saver, nil).Register(r)
	return r
}

func TestHandlers_Save(t *testing.T) {
	convs := &fakeConvs{modes: mode.Default()}
	saver := &fakeSaver{rep: &publish.Report{Message: "📝 **일지 저장 완료!**"}}
	r := newRouter(convs, saver)

	reply, err := r.Route(context.Background(), "/저장", Invocation{RoomID: "!gym:hs", Actor: "@me:hs", Label: "운동"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if reply != "📝 **일지 저장 완료!**" {
		t.Errorf("reply = %q", reply)
	}
	if len(saver.targets) != 1 {
		t.Fatalf("saves = %d", len(saver.targets))
	}
	tgt := saver.targets[0]
	if tgt.Key != "room:!gym:hs" || tgt.Label != "운동" || tgt.Mode.Name != "운동" {
		t.Errorf("target = %+v", tgt)
	}
}

func TestHandlers_SaveActorScoped(t *testing.T) {
	convs := &fakeConvs{modes: mode.Default()}
	saver := &fakeSaver{rep: &publish.Report{Message: journal.EmptyMessage}}
	r := newRouter(convs, saver)

	if _, err := r.Route(context.Background(), "/save", Invocation{RoomID: "!tr:hs", Actor: "@me:hs", Label: "번역"}); err != nil {
		t.Fatal(err)
	}
	if got := saver.targets[0].Key; got != "actor:@me:hs" {
		t.Errorf("key = %q, want actor:@me:hs", got)
	}
}

func TestHandlers_SaveError(t *testing.T) {
	boom := errors.New("model down")
	r := newRouter(&fakeConvs{modes: mode.Default()}, &fakeSaver{err: boom})
	if _, err := r.Route(context.Background(), "/저장", Invocation{Label: "일정"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestHandlers_Reset(t *testing.T) {
	convs := &fakeConvs{modes: mode.Default()}
	r := newRouter(convs, &fakeSaver{})

	reply, err := r.Route(context.Background(), "/초기화", Invocation{RoomID: "!a:hs", Actor: "@me:hs", Label: "잡담"})
	if err != nil || reply != ResetReply {
		t.Fatalf("Route = %q, %v", reply, err)
	}
	if len(convs.reset) != 1 || convs.reset[0] != "room:!a:hs" {
		t.Errorf("reset = %v", convs.reset)
	}

	convs.err = errors.New("db locked")
	if _, err := r.Route(context.Background(), "/reset", Invocation{RoomID: "!a:hs"}); err == nil {
		t.Error("reset failure: want error")
	}
}

func TestHandlers_Mode(t *testing.T) {
	r := newRouter(&fakeConvs{modes: mode.Default()}, &fakeSaver{})
	tests := map[string]string{
		"운동-기록": "🏋️ 현재 채널 모드: **운동**",
		"번역":    "🌏 현재 채널 모드: **번역**",
		"잡담":    "🤖 현재 채널 모드: **default**",
	}
	for label, want := range tests {
		reply, err := r.Route(context.Background(), "/모드", Invocation{Label: label})
		if err != nil || reply != want {
			t.Errorf("/모드 in %q = %q, %v; want %q", label, reply, err, want)
		}
	}
}

func TestUnknownReply(t *testing.T) {
	got := UnknownReply("도움말", []string{"저장", "초기화", "모드"})
	if !strings.HasPrefix(got, "❓ 알 수 없는 명령어예요: /도움말") || !strings.Contains(got, "/저장, /초기화, /모드") {
		t.Errorf("UnknownReply = %q", got)
	}
}
