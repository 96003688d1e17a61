package shell

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/martinribelotta/uPyIDE/internal/devicetest"
	"github.com/martinribelotta/uPyIDE/internal/pyboard"
	"github.com/martinribelotta/uPyIDE/internal/pylit"
	"github.com/martinribelotta/uPyIDE/internal/remote"
	"github.com/martinribelotta/uPyIDE/internal/transfer"
	"github.com/martinribelotta/uPyIDE/internal/vfs"
)

type fixture struct {
	sh  *Shell
	dev *devicetest.Device
	out *bytes.Buffer
	err *bytes.Buffer
	// host is a scratch host directory, also the starting cwd.
	host string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev := devicetest.New(t, "flash", "sd")
	b := pyboard.New(dev.Start(t), nil)
	b.Paced = false
	in := remote.NewInjector(b, nil)
	roots, err := vfs.DiscoverRoots(in)
	if err != nil {
		t.Fatalf("DiscoverRoots: %v", err)
	}
	host := filepath.ToSlash(t.TempDir())
	sess := &Session{ID: "test", Port: "pipe", Roots: roots, Cwd: host, Columns: 80}
	disp := &vfs.Dispatcher{
		Roots:  roots,
		Remote: &vfs.RemoteFS{Caller: in, Engine: &transfer.Engine{Stall: time.Second}},
	}
	f := &fixture{dev: dev, out: &bytes.Buffer{}, err: &bytes.Buffer{}, host: host}
	f.sh = New(sess, disp, in, b, nil)
	f.sh.Out = f.out
	f.sh.Err = f.err
	f.sh.In = strings.NewReader("")
	return f
}

func (f *fixture) run(t *testing.T, line string) (string, string) {
	t.Helper()
	f.out.Reset()
	f.err.Reset()
	if f.sh.Exec(line) {
		t.Fatalf("%q stopped the shell", line)
	}
	return f.out.String(), f.err.String()
}

func (f *fixture) writeHost(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := f.host + "/" + name
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{`echo "hello world" foo`, []string{"echo", "hello world", "foo"}},
		{`a\"b c`, []string{`a"b`, "c"}},
		{`'it\'s'`, []string{"it's"}},
		{`say "she said \"hi\""`, []string{"say", `she said "hi"`}},
		{`""`, []string{""}},
		{`x "" y`, []string{"x", "", "y"}},
		{`a\ b`, []string{"a b"}},
		{`back\\slash`, []string{`back\slash`}},
		{`tab\tx`, []string{"tab\tx"}},
		{`keep\q`, []string{`keep\q`}},
		{"  spaced   out ", []string{"spaced", "out"}},
		{`mixed'quo ted'word`, []string{"mixedquo tedword"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := SplitLine(tt.line); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitLine(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestRedirection(t *testing.T) {
	tests := []struct {
		args      []string
		rest      []string
		target    string
		appending bool
	}{
		{[]string{"hi", ">", "out"}, []string{"hi"}, "out", false},
		{[]string{"hi", ">>", "out"}, []string{"hi"}, "out", true},
		{[]string{">", "out"}, []string{}, "out", false},
		{[]string{"a", ">", "b", "c"}, []string{"a", ">", "b", "c"}, "", false},
		{[]string{"out"}, []string{"out"}, "", false},
	}
	for _, tt := range tests {
		rest, target, appending := redirection(tt.args)
		if !reflect.DeepEqual(rest, tt.rest) || target != tt.target || appending != tt.appending {
			t.Errorf("redirection(%q) = %q, %q, %v", tt.args, rest, target, appending)
		}
	}
}

func TestPrintColumns(t *testing.T) {
	words := []string{"a", "bb", "ccc"}
	tests := []struct {
		width int
		want  string
	}{
		{3, "a\nbb\nccc\n"},
		{7, "a   ccc\nbb\n"},
		{80, "a   bb  ccc\n"},
	}
	for _, tt := range tests {
		var b bytes.Buffer
		PrintColumns(&b, words, tt.width)
		if b.String() != tt.want {
			t.Errorf("width %d: got %q, want %q", tt.width, b.String(), tt.want)
		}
	}

	var b bytes.Buffer
	PrintColumns(&b, nil, 80)
	if b.Len() != 0 {
		t.Errorf("no words printed %q", b.String())
	}
}

func TestLsLong(t *testing.T) {
	f := newFixture(t)
	mtime := time.Date(2023, time.November, 4, 9, 5, 0, 0, time.Local)
	f.dev.WriteFile(t, "/flash/data.txt", []byte("0123456789"), mtime)

	out, errOut := f.run(t, "ls -l /flash")
	want := fmt.Sprintf("%6d %s %2d %02d:%02d %s\n", 10, "Nov", 4, 9, 5, "data.txt")
	if out != want {
		t.Errorf("ls -l = %q, want %q", out, want)
	}
	if errOut != "" {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestLsColumnsAndHidden(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/b.py", nil, time.Time{})
	f.dev.WriteFile(t, "/flash/a.txt", nil, time.Time{})
	f.dev.WriteFile(t, "/flash/.hidden", nil, time.Time{})
	f.dev.WriteFile(t, "/flash/old~", nil, time.Time{})
	f.dev.WriteFile(t, "/flash/lib/x.py", nil, time.Time{})

	if out, _ := f.run(t, "ls /flash"); out != "a.txt b.py  lib/\n" {
		t.Errorf("ls = %q", out)
	}
	if out, _ := f.run(t, "ls -a /flash"); out != ".hidden a.txt   b.py    lib/    old~\n" {
		t.Errorf("ls -a = %q", out)
	}
}

func TestLsSeveralPaths(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/main.py", nil, time.Time{})
	f.dev.WriteFile(t, "/sd/log.txt", nil, time.Time{})

	out, errOut := f.run(t, "ls /flash /nowhere /sd /flash/main.py")
	want := "/flash:\nmain.py\n\n/sd:\nlog.txt\n/flash/main.py\n"
	if out != want {
		t.Errorf("ls = %q, want %q", out, want)
	}
	if !strings.Contains(errOut, "/nowhere") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestLsRootShowsMounts(t *testing.T) {
	f := newFixture(t)
	out, _ := f.run(t, "ls /")
	if !strings.Contains(out, "flash/") || !strings.Contains(out, "sd/") {
		t.Errorf("ls / = %q", out)
	}
}

func TestCd(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/lib/x.py", nil, time.Time{})

	f.run(t, "cd /flash/lib")
	if f.sh.Session.Cwd != "/flash/lib" {
		t.Fatalf("cwd = %q", f.sh.Session.Cwd)
	}
	f.run(t, "cd ..")
	if f.sh.Session.Cwd != "/flash" {
		t.Fatalf("cwd = %q", f.sh.Session.Cwd)
	}

	_, errOut := f.run(t, "cd missing")
	if f.sh.Session.Cwd != "/flash" {
		t.Errorf("failed cd moved to %q", f.sh.Session.Cwd)
	}
	if !strings.Contains(errOut, "/flash/missing") {
		t.Errorf("stderr = %q", errOut)
	}

	_, errOut = f.run(t, "cd lib/x.py")
	if f.sh.Session.Cwd != "/flash" || errOut == "" {
		t.Errorf("cd to a file: cwd %q, stderr %q", f.sh.Session.Cwd, errOut)
	}

	f.run(t, "cd")
	if f.sh.Session.Cwd != "/" {
		t.Errorf("cd without args: cwd = %q", f.sh.Session.Cwd)
	}
	if got := f.sh.Prompt(); got != "/> " {
		t.Errorf("prompt = %q", got)
	}
}

func TestCat(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/boot.py", []byte("import gc\n"), time.Time{})
	f.writeHost(t, "notes.txt", []byte("host\n"))

	out, errOut := f.run(t, "cat /flash/boot.py missing.txt notes.txt /flash")
	if out != "import gc\nhost\n" {
		t.Errorf("cat = %q", out)
	}
	if !strings.Contains(errOut, "missing.txt") || !strings.Contains(errOut, "not a file") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestCpLocalToRemote(t *testing.T) {
	f := newFixture(t)
	payload := bytes.Repeat([]byte{0x06}, 1025)
	f.writeHost(t, "big.bin", payload)

	if _, errOut := f.run(t, "cp big.bin /flash/big.bin"); errOut != "" {
		t.Fatalf("cp: %s", errOut)
	}
	if got := f.dev.Chunks(); !reflect.DeepEqual(got, []int{512, 512, 1}) {
		t.Errorf("chunks = %v", got)
	}
	if sent, _ := f.dev.Acks(); sent != 3 {
		t.Errorf("acks = %d", sent)
	}
	got, _ := os.ReadFile(f.dev.HostPath("/flash/big.bin"))
	if !bytes.Equal(got, payload) {
		t.Error("board copy differs")
	}
}

func TestCpChatterFollowsRedirect(t *testing.T) {
	f := newFixture(t)
	f.dev.Chatter = "gc "
	f.writeHost(t, "big.bin", bytes.Repeat([]byte{'x'}, 600))

	out, errOut := f.run(t, "cp big.bin /flash/big.bin > cp.log")
	if out != "" || errOut != "" {
		t.Fatalf("stdout = %q, stderr = %q", out, errOut)
	}
	got, err := os.ReadFile(f.host + "/cp.log")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "gc gc " {
		t.Errorf("cp.log = %q", got)
	}
}

func TestCommandNameEndsAtAnySpace(t *testing.T) {
	f := newFixture(t)
	if out, errOut := f.run(t, "echo\tone  two"); out != "one two\n" || errOut != "" {
		t.Errorf("echo = %q, stderr = %q", out, errOut)
	}
	f.writeHost(t, ".hidden", nil)
	if out, _ := f.run(t, "ls\t-a"); !strings.Contains(out, ".hidden") {
		t.Errorf("ls -a = %q", out)
	}
}

func TestCpIntoDirectory(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/a.py", []byte("a"), time.Time{})
	f.dev.WriteFile(t, "/flash/b.py", []byte("b"), time.Time{})

	if _, errOut := f.run(t, "cp /flash/a.py /flash/b.py ."); errOut != "" {
		t.Fatalf("cp: %s", errOut)
	}
	for _, name := range []string{"a.py", "b.py"} {
		data, err := os.ReadFile(f.host + "/" + name)
		if err != nil || string(data) != strings.TrimSuffix(name, ".py") {
			t.Errorf("%s = %q, %v", name, data, err)
		}
	}

	_, errOut := f.run(t, "cp /flash/a.py /flash/b.py /flash/a.py")
	if !strings.Contains(errOut, "directory") {
		t.Errorf("several sources to a file: stderr %q", errOut)
	}
	if _, errOut := f.run(t, "cp /flash/a.py"); !strings.Contains(errOut, "usage") {
		t.Errorf("one argument: stderr %q", errOut)
	}
}

func TestCpStopsAtFirstFailure(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/b.py", []byte("b"), time.Time{})

	_, errOut := f.run(t, "cp /flash/missing.py /flash/b.py .")
	if !strings.Contains(errOut, "missing.py") {
		t.Errorf("stderr = %q", errOut)
	}
	if _, err := os.Stat(f.host + "/b.py"); !os.IsNotExist(err) {
		t.Error("copy continued after a failure")
	}
}

func TestRmContinues(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/a.txt", nil, time.Time{})
	f.dev.WriteFile(t, "/flash/empty/.keep", nil, time.Time{})
	os.Remove(f.dev.HostPath("/flash/empty/.keep"))

	_, errOut := f.run(t, "rm /flash/nope /flash/a.txt /flash/empty")
	if !strings.Contains(errOut, "/flash/nope") {
		t.Errorf("stderr = %q", errOut)
	}
	for _, p := range []string{"/flash/a.txt", "/flash/empty"} {
		if _, err := os.Stat(f.dev.HostPath(p)); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
}

func TestMkdir(t *testing.T) {
	f := newFixture(t)
	f.dev.WriteFile(t, "/flash/taken/x", nil, time.Time{})

	_, errOut := f.run(t, "mkdir /flash/taken /flash/new "+f.host+"/local")
	if !strings.Contains(errOut, "already exists") {
		t.Errorf("stderr = %q", errOut)
	}
	for _, p := range []string{f.dev.HostPath("/flash/new"), f.host + "/local"} {
		if st, err := os.Stat(p); err != nil || !st.IsDir() {
			t.Errorf("%s not created: %v", p, err)
		}
	}
	// Only the named directory is created, never its parents.
	if _, errOut := f.run(t, "mkdir /flash/a/b"); errOut == "" {
		t.Error("nested mkdir without parent succeeded")
	}
}

func TestRedirect(t *testing.T) {
	f := newFixture(t)

	if out, _ := f.run(t, "echo hello world > out.txt"); out != "" {
		t.Errorf("redirected output leaked: %q", out)
	}
	f.run(t, `echo "again" >> out.txt`)
	data, err := os.ReadFile(f.host + "/out.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world\nagain\n" {
		t.Errorf("file = %q", data)
	}
	if out, _ := f.run(t, "echo back"); out != "back\n" {
		t.Errorf("output not restored: %q", out)
	}
	if _, errOut := f.run(t, "echo x > /flash/out.txt"); errOut == "" {
		t.Error("redirect to the board succeeded")
	}
}

func TestArgsAndHelp(t *testing.T) {
	f := newFixture(t)
	if out, _ := f.run(t, `args one "two three"`); out != "arg[0] = 'one'\narg[1] = 'two three'\n" {
		t.Errorf("args = %q", out)
	}
	if out, _ := f.run(t, "help cp"); !strings.HasPrefix(out, "cp SOURCE DEST") {
		t.Errorf("help cp = %q", out)
	}
	if out, _ := f.run(t, "help"); !strings.Contains(out, "mkdir") || !strings.Contains(out, "soft_reset") {
		t.Errorf("help = %q", out)
	}
	if _, errOut := f.run(t, "frobnicate"); !strings.Contains(errOut, "frobnicate") {
		t.Errorf("unknown command stderr = %q", errOut)
	}
}

type recorder struct {
	lines []string
	oks   []bool
}

func (r *recorder) RecordCommand(_, _, line string, ok bool) error {
	r.lines = append(r.lines, line)
	r.oks = append(r.oks, ok)
	return nil
}

func TestLoopBatch(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	f.sh.History = rec

	script := "# comment\ncd /flash\n\nmkdir x\nls /nowhere\nquit\nmkdir y\n"
	if err := f.sh.Loop(strings.NewReader(script), false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(f.dev.HostPath("/flash/x")); err != nil {
		t.Errorf("x not created: %v", err)
	}
	if _, err := os.Stat(f.dev.HostPath("/flash/y")); !os.IsNotExist(err) {
		t.Error("command after quit ran")
	}
	wantLines := []string{"cd /flash", "mkdir x", "ls /nowhere"}
	if !reflect.DeepEqual(rec.lines, wantLines) {
		t.Errorf("history = %q", rec.lines)
	}
	if !reflect.DeepEqual(rec.oks, []bool{true, true, false}) {
		t.Errorf("history ok = %v", rec.oks)
	}
}

func TestLoopInteractiveEOF(t *testing.T) {
	f := newFixture(t)
	f.sh.Session.Cwd = "/flash"
	if err := f.sh.Loop(strings.NewReader("echo hi\n"), true); err != nil {
		t.Fatal(err)
	}
	if got := f.out.String(); got != "/flash> hi\n/flash> \n" {
		t.Errorf("output = %q", got)
	}
}

func TestSetAndGetTime(t *testing.T) {
	f := newFixture(t)
	out, errOut := f.run(t, "set_time 2024 3 5 14 7 0")
	if errOut != "" {
		t.Fatalf("set_time: %s", errOut)
	}
	if out != "Tue Mar  5 14:07:00 2024\n" {
		t.Errorf("set_time printed %q", out)
	}
	want := pylit.Tuple{int64(2024), int64(3), int64(5), int64(2), int64(14), int64(7), int64(0), int64(0)}
	if got := f.dev.RTC(); !reflect.DeepEqual(got, want) {
		t.Errorf("rtc = %#v", got)
	}

	if _, errOut := f.run(t, "set_time 2024 x 5 14 7 0"); !strings.Contains(errOut, "numeric") {
		t.Errorf("bad set_time stderr = %q", errOut)
	}
	out, errOut = f.run(t, "get_time")
	if errOut != "" || len(strings.TrimSpace(out)) != len("Mon Jan  2 15:04:05 2006") {
		t.Errorf("get_time = %q, %q", out, errOut)
	}
}

func TestSoftReset(t *testing.T) {
	f := newFixture(t)
	if _, errOut := f.run(t, "soft_reset"); errOut != "" {
		t.Fatalf("soft_reset: %s", errOut)
	}
	if f.dev.Resets() != 1 {
		t.Errorf("resets = %d", f.dev.Resets())
	}
}

func TestRepl(t *testing.T) {
	f := newFixture(t)
	f.sh.In = strings.NewReader("1+1\n\x18ignored")

	out, errOut := f.run(t, "repl")
	if errOut != "" {
		t.Fatalf("repl: %s", errOut)
	}
	if !strings.HasPrefix(out, "Entering REPL") {
		t.Errorf("output = %q", out)
	}
	deadline := time.Now().Add(time.Second)
	for string(f.dev.Typed()) != "1+1" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := string(f.dev.Typed()); got != "1+1" {
		t.Errorf("board received %q", got)
	}
}

func TestTranslateKey(t *testing.T) {
	tests := map[byte][]byte{
		'\n': {'\r'},
		'\b': {0x7f},
		'a':  {'a'},
		0x1b: {0x1b},
	}
	for in, want := range tests {
		if got := translateKey(in); !bytes.Equal(got, want) {
			t.Errorf("translateKey(%q) = %q, want %q", in, got, want)
		}
	}
}
