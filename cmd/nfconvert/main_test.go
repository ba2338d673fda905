package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/InfraSecConsult/nfconvert-go/internal/testutil"
	"github.com/InfraSecConsult/nfconvert-go/internal/transmit"
)

func TestConvertCommand_PerInput(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "in")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"cap_run_1.pcap", "cap_run_2.pcap"} {
		if err := os.WriteFile(filepath.Join(inputDir, name), []byte("trace"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	outputDir := filepath.Join(root, "out")

	launcher := &testutil.MockLauncher{}
	provider := &DependencyProvider{
		Launcher:    launcher,
		Transmitter: &testutil.MockTransmitter{},
		Normalizer:  &testutil.MockNormalizer{},
	}

	cmd := newRootCmd(provider)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"convert",
		"--input-dir", inputDir,
		"--scratch-dir", filepath.Join(root, "scratch"),
		"--output-dir", outputDir,
		"--progress=false",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"cap_run_1.nf", "cap_run_2.nf"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("expected flow file %s: %v", name, err)
		}
	}
	if !launcher.AllStopped() {
		t.Error("expected every collector session to be stopped")
	}
}

func TestConvertCommand_MergedOutput(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "in")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "cap_run_1.pcap"), []byte("trace"), 0o644); err != nil {
		t.Fatal(err)
	}
	merged := filepath.Join(root, "all.nf")

	provider := &DependencyProvider{
		Launcher:    &testutil.MockLauncher{},
		Transmitter: &testutil.MockTransmitter{},
		Normalizer:  &testutil.MockNormalizer{},
	}

	cmd := newRootCmd(provider)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"convert",
		"--input-dir", inputDir,
		"--scratch-dir", filepath.Join(root, "scratch"),
		"--merge",
		"--merged-output", merged,
		"--progress=false",
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(merged); err != nil {
		t.Errorf("expected merged flow file: %v", err)
	}
}

func TestConvertCommand_TransmitterError(t *testing.T) {
	root := t.TempDir()
	inputDir := filepath.Join(root, "in")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	tracePath := filepath.Join(inputDir, "cap_run_1.pcap")
	if err := os.WriteFile(tracePath, []byte("trace"), 0o644); err != nil {
		t.Fatal(err)
	}

	provider := &DependencyProvider{
		Launcher:    &testutil.MockLauncher{},
		Transmitter: &testutil.MockTransmitter{FailOn: tracePath, Err: transmit.ErrExportSend},
		Normalizer:  &testutil.MockNormalizer{},
	}

	cmd := newRootCmd(provider)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"convert",
		"--input-dir", inputDir,
		"--scratch-dir", filepath.Join(root, "scratch"),
		"--output-dir", filepath.Join(root, "out"),
		"--progress=false",
	})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected the failing unit to surface an error")
	}
	if !bytes.Contains(out.Bytes(), []byte("FAILED")) {
		t.Errorf("report should name the failing unit, got %q", out.String())
	}
}
