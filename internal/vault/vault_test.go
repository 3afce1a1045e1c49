package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/positivef/udo-sync/internal/domain"
	"gopkg.in/yaml.v3"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	return New(Options{Root: root}), root
}

func TestStore_Available(t *testing.T) {
	s, _ := newTestStore(t)
	if !s.Available() {
		t.Fatalf("expected available for existing temp dir")
	}

	s2 := New(Options{Root: "/does/not/exist/at/all"})
	if s2.Available() {
		t.Fatalf("expected unavailable for nonexistent root")
	}
}

func TestStore_WriteUnavailableIsNoop(t *testing.T) {
	s := New(Options{Root: "/does/not/exist/at/all"})
	path, err := s.Write("title", nil, "body", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path for unavailable vault, got %q", path)
	}
}

func TestStore_WriteAndReadRoundTrip(t *testing.T) {
	s, root := newTestStore(t)
	ts := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	fm := domain.FrontMatter{}.Set("event_type", domain.FMString("phase_transition")).Set("events_count", domain.FMInt(1))

	relPath, err := s.Write("Phase Moved", fm, "body text", ts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.Contains(relPath, "2026-07-31") {
		t.Fatalf("path %q missing date component", relPath)
	}
	if _, err := os.Stat(filepath.Join(root, relPath)); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}

	gotFM, body, err := s.ReadNote(relPath)
	if err != nil {
		t.Fatalf("ReadNote: %v", err)
	}
	if gotFM.GetString("event_type") != "phase_transition" {
		t.Fatalf("event_type = %q", gotFM.GetString("event_type"))
	}
	if body != "body text" {
		t.Fatalf("body = %q", body)
	}
}

func TestStore_CollisionSuffixing(t *testing.T) {
	s, _ := newTestStore(t)
	ts := time.Date(2026, 7, 31, 10, 30, 0, 0, time.UTC)

	p1, err := s.Write("same title", nil, "one", ts)
	if err != nil {
		t.Fatalf("Write 1: %v", err)
	}
	p2, err := s.Write("same title", nil, "two", ts)
	if err != nil {
		t.Fatalf("Write 2: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct paths on collision, got %q twice", p1)
	}
	if !strings.Contains(p2, "-2.md") {
		t.Fatalf("expected second write to carry -2 suffix, got %q", p2)
	}
}

func TestStore_NoPartialFileOnTargetName(t *testing.T) {
	s, root := newTestStore(t)
	ts := time.Now()
	relPath, err := s.Write("atomic", nil, "content", ts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	dir := filepath.Dir(filepath.Join(root, relPath))
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

// P7: for any input of Hangul syllables and ASCII whitespace, Sanitize
// preserves every Hangul codepoint from the input, in original order.
func TestSanitize_PreservesKorean(t *testing.T) {
	inputs := []string{
		"자동 백업 컨텍스트 유실 방지",
		"개발일지 작성",
		"한글 only",
	}
	for _, in := range inputs {
		out := Sanitize(in)
		var wantHangul, gotHangul []rune
		for _, r := range in {
			if unicode.Is(unicode.Hangul, r) {
				wantHangul = append(wantHangul, r)
			}
		}
		for _, r := range out {
			if unicode.Is(unicode.Hangul, r) {
				gotHangul = append(gotHangul, r)
			}
		}
		if string(wantHangul) != string(gotHangul) {
			t.Fatalf("input %q: hangul %q != expected %q", in, string(gotHangul), string(wantHangul))
		}
	}
}

func TestSanitize_StripsReservedCharsAndCollapsesWhitespace(t *testing.T) {
	out := Sanitize(`bad: name / with * reserved?chars`)
	if strings.ContainsAny(out, `<>:"/\|?*`) {
		t.Fatalf("reserved characters survived: %q", out)
	}
	if strings.Contains(out, "  ") {
		t.Fatalf("whitespace not collapsed: %q", out)
	}
}

func TestSanitize_TruncatesTo80Runes(t *testing.T) {
	long := strings.Repeat("a", 200)
	out := Sanitize(long)
	if len([]rune(out)) > 80 {
		t.Fatalf("len=%d want <= 80", len([]rune(out)))
	}
}

// The frontmatter writer renders lists as `[a, b, c]` rather than emitting
// real YAML documents (spec.md §4.3), but that bracketed form is still
// valid YAML flow-sequence syntax. Cross-check against a real YAML decoder
// so a future change to FMList.fmRender can't silently drift into a form
// tools expecting YAML-flow lists would reject.
func TestFMList_RendersAsValidYAMLFlowSequence(t *testing.T) {
	fm := domain.FrontMatter{}.Set("tags", domain.FMList{"pandas", "module-not-found", "python"})
	rendered := fm.Render()

	idx := strings.Index(rendered, ": ")
	if idx < 0 {
		t.Fatalf("rendered frontmatter missing separator: %q", rendered)
	}
	flowSeq := strings.TrimSpace(rendered[idx+2:])

	var decoded []string
	if err := yaml.Unmarshal([]byte(flowSeq), &decoded); err != nil {
		t.Fatalf("rendered list %q is not valid YAML: %v", flowSeq, err)
	}
	want := []string{"pandas", "module-not-found", "python"}
	if len(decoded) != len(want) {
		t.Fatalf("decoded %v, want %v", decoded, want)
	}
	for i := range want {
		if decoded[i] != want[i] {
			t.Fatalf("decoded[%d] = %q, want %q", i, decoded[i], want[i])
		}
	}
}

func TestStore_ListRecent_FiltersByWindow(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	recent := now.AddDate(0, 0, -1)
	old := now.AddDate(0, 0, -40)

	if _, err := s.Write("recent note", nil, "r", recent); err != nil {
		t.Fatalf("write recent: %v", err)
	}
	if _, err := s.Write("old note", nil, "o", old); err != nil {
		t.Fatalf("write old: %v", err)
	}

	summaries, err := s.ListRecent(7)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	for _, sum := range summaries {
		if sum.Date == old.Format("2006-01-02") {
			t.Fatalf("old note leaked into 7-day window: %+v", sum)
		}
	}
}
