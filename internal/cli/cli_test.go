package cli

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeCommand runs a cobra command with the given args and captures combined output.
func executeCommand(root *cobra.Command, stdin string, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	_, err = root.ExecuteC()
	return buf.String(), err
}

// writeConfig writes a config file that keeps every path inside a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`logging:
  directory: ""
  level: error
storage:
  bucket: %q
database:
  driver: sqlite
  path: %q
`, filepath.Join(dir, "objects"), filepath.Join(dir, "care.db"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writePhoto(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func testBuild() BuildInfo {
	return BuildInfo{Version: "1.2.3", BuildTime: "2026-10-19", GitCommit: "abc123"}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(NewRootCmd(testBuild()), "", "version")
	if err != nil {
		t.Fatalf("version command error: %v", err)
	}
	for _, want := range []string{"coloring-care 1.2.3", "Build time: 2026-10-19", "Git commit: abc123"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestOutlineCommand(t *testing.T) {
	cfg := writeConfig(t)
	input := writePhoto(t, 40, 20)
	output := filepath.Join(t.TempDir(), "outline.png")

	out, err := executeCommand(NewRootCmd(testBuild()), "",
		"--config", cfg, "outline", input, output, "--max-dimension", "20")
	if err != nil {
		t.Fatalf("outline command error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "(20x10, scaled from 40x20)") {
		t.Errorf("unexpected output:\n%s", out)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Errorf("output size %dx%d, want 20x10", b.Dx(), b.Dy())
	}
}

func TestOutlineCommand_Errors(t *testing.T) {
	cfg := writeConfig(t)
	input := writePhoto(t, 8, 8)
	output := filepath.Join(t.TempDir(), "out.png")

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"missing output", []string{"--config", cfg, "outline", input}, "accepts 2 arg(s)"},
		{"missing input", []string{"--config", cfg, "outline", filepath.Join(t.TempDir(), "nope.png"), output}, "failed to read input"},
		{"inverted thresholds", []string{"--config", cfg, "outline", input, output, "--low", "50", "--high", "10"}, "low threshold"},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "outline", input, output}, "loading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := executeCommand(NewRootCmd(testBuild()), "", tt.args...)
			if err == nil {
				t.Fatal("expected an error, got nil")
			}
			if combined := out + err.Error(); !strings.Contains(combined, tt.contains) {
				t.Errorf("expected error to contain %q, got: %q", tt.contains, combined)
			}
		})
	}
}

func TestServeCommand(t *testing.T) {
	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n"

	for _, args := range [][]string{{"serve"}, {}} {
		t.Run(strings.Join(append([]string{"root"}, args...), " "), func(t *testing.T) {
			cfg := writeConfig(t)
			out, err := executeCommand(NewRootCmd(testBuild()), initialize, append([]string{"--config", cfg}, args...)...)
			if err != nil {
				t.Fatalf("serve command error: %v\n%s", err, out)
			}
			if !strings.Contains(out, `"name":"coloring-care"`) || !strings.Contains(out, `"version":"1.2.3"`) {
				t.Errorf("expected an initialize response, got:\n%s", out)
			}
		})
	}
}
