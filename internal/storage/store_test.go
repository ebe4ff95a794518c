package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logx "escalabot/pkg/logx"
)

type fixture struct {
	Name  string           `json:"nome"`
	Count int              `json:"contagem"`
	Tags  map[string]int64 `json:"etiquetas"`
}

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{}

	for driver, path := range map[string]string{
		"file":   t.TempDir(),
		"sqlite": filepath.Join(t.TempDir(), "records.db"),
	} {
		st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		stores[driver] = st
	}
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()

	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			var missing fixture
			found, err := st.Load(ctx, "escala", &missing)
			if err != nil {
				t.Fatalf("load absent: %v", err)
			}
			if found {
				t.Fatal("absent record reported found")
			}

			in := fixture{Name: "escala de março", Count: 3, Tags: map[string]int64{"ana": 101}}
			if err := st.Save(ctx, "escala", in); err != nil {
				t.Fatalf("save: %v", err)
			}

			var out fixture
			found, err = st.Load(ctx, "escala", &out)
			if err != nil || !found {
				t.Fatalf("load back: found=%v err=%v", found, err)
			}
			if out.Name != in.Name || out.Count != in.Count || out.Tags["ana"] != 101 {
				t.Fatalf("round trip mismatch: %+v", out)
			}

			// Save replaces the whole record, it does not merge.
			if err := st.Save(ctx, "escala", fixture{Name: "substituída"}); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			out = fixture{}
			if _, err := st.Load(ctx, "escala", &out); err != nil {
				t.Fatalf("load after overwrite: %v", err)
			}
			if out.Count != 0 || len(out.Tags) != 0 {
				t.Fatalf("overwrite merged instead of replacing: %+v", out)
			}
		})
	}
}

func TestStoreRecordsAreIndependent(t *testing.T) {
	ctx := context.Background()

	for driver, st := range openDrivers(t) {
		t.Run(driver, func(t *testing.T) {
			if err := st.Save(ctx, "usuarios", map[string]int64{"ana": 1}); err != nil {
				t.Fatalf("save usuarios: %v", err)
			}
			if err := st.Save(ctx, "config", map[string]int{"topico_escala_id": 7}); err != nil {
				t.Fatalf("save config: %v", err)
			}

			var users map[string]int64
			if _, err := st.Load(ctx, "usuarios", &users); err != nil {
				t.Fatalf("load usuarios: %v", err)
			}
			if users["ana"] != 1 {
				t.Fatalf("usuarios record lost: %+v", users)
			}
		})
	}
}

func TestFileStoreRejectsBadRecordName(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Save(context.Background(), "../escape", map[string]int{}); err == nil {
		t.Fatal("path-traversing record name accepted")
	}
	if _, err := st.Load(context.Background(), "Maiúscula", &struct{}{}); err == nil {
		t.Fatal("record name outside [a-z0-9_-] accepted")
	}
}

func TestFileStoreWritesPrettyJSON(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Save(context.Background(), "escala", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "escala.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "\n  ") || !strings.HasSuffix(s, "\n") {
		t.Fatalf("document not written indented with trailing newline: %q", s)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
