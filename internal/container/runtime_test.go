// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// mockExecutor records calls and returns configured responses.
type mockExecutor struct {
	availableBins map[string]bool // binary -> whether LookPath succeeds
	runnableCmds  map[string]bool // "bin arg1 arg2" -> whether RunSilent succeeds
	runPipedFunc  func(name string, args []string, stdin io.Reader, stdout io.Writer) error
}

func (m *mockExecutor) LookPath(file string) (string, error) {
	if m.availableBins[file] {
		return "/usr/bin/" + file, nil
	}
	return "", errors.New("not found: " + file)
}

func (m *mockExecutor) RunSilent(_ context.Context, name string, args ...string) error {
	key := name + " " + strings.Join(args, " ")
	if m.runnableCmds[key] {
		return nil
	}
	return errors.New("command failed: " + key)
}

func (m *mockExecutor) RunPiped(_ context.Context, name string, args []string, stdin io.Reader, stdout, _ io.Writer) error {
	if m.runPipedFunc != nil {
		return m.runPipedFunc(name, args, stdin, stdout)
	}
	return nil
}

func TestDetectRuntime(t *testing.T) {
	tests := []struct {
		name     string
		exec     *mockExecutor
		wantName string
		wantErr  bool
	}{
		{
			name: "docker available",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true},
				runnableCmds:  map[string]bool{"docker info": true},
			},
			wantName: "docker",
		},
		{
			name: "podman fallback when docker missing",
			exec: &mockExecutor{
				availableBins: map[string]bool{"podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "neither available",
			exec: &mockExecutor{
				availableBins: map[string]bool{},
				runnableCmds:  map[string]bool{},
			},
			wantErr: true,
		},
		{
			name: "docker on PATH but info fails, podman works",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"podman info": true},
			},
			wantName: "podman",
		},
		{
			name: "both available, docker preferred",
			exec: &mockExecutor{
				availableBins: map[string]bool{"docker": true, "podman": true},
				runnableCmds:  map[string]bool{"docker info": true, "podman info": true},
			},
			wantName: "docker",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := detectRuntime(context.Background(), tt.exec)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), "no container runtime available") {
					t.Errorf("error should mention no runtime available, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rt.Name() != tt.wantName {
				t.Errorf("got runtime %q, want %q", rt.Name(), tt.wantName)
			}
		})
	}
}

func TestImageExists(t *testing.T) {
	tests := []struct {
		name    string
		mkRT    func(*mockExecutor) Runtime
		cmds    map[string]bool
		wantErr bool
	}{
		{
			name: "docker image exists",
			mkRT: func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			cmds: map[string]bool{"docker image inspect marker-pdf:latest": true},
		},
		{
			name:    "docker image not found",
			mkRT:    func(e *mockExecutor) Runtime { return newDockerRuntime(e) },
			cmds:    map[string]bool{},
			wantErr: true,
		},
		{
			name: "podman image exists",
			mkRT: func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			cmds: map[string]bool{"podman image exists marker-pdf:latest": true},
		},
		{
			name:    "podman image not found",
			mkRT:    func(e *mockExecutor) Runtime { return newPodmanRuntime(e) },
			cmds:    map[string]bool{},
			wantErr: true,
		},
	}
	const image = "marker-pdf:latest"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := tt.mkRT(&mockExecutor{runnableCmds: tt.cmds})
			err := rt.ImageExists(context.Background(), image)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), image) {
					t.Errorf("error should mention image name, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRun(t *testing.T) {
	var gotName string
	var gotArgs []string
	exec := &mockExecutor{
		runPipedFunc: func(name string, args []string, stdin io.Reader, stdout io.Writer) error {
			gotName, gotArgs = name, args
			if stdin != nil {
				data, _ := io.ReadAll(stdin)
				_, _ = stdout.Write([]byte("converted: " + string(data)))
			}
			return nil
		},
	}
	rt := newPodmanRuntime(exec)

	var out bytes.Buffer
	err := rt.Run(context.Background(), "marker-pdf:latest", RunOptions{
		Mounts: []Mount{
			{Source: "/data/raw", Target: "/input", ReadOnly: true},
			{Source: "/tmp/out", Target: "/output"},
		},
		Env:    map[string]string{"TORCH_DEVICE": "cpu", "CUDA_VISIBLE_DEVICES": ""},
		Args:   []string{"/input/a.pdf", "--output_dir", "/output"},
		Stdin:  strings.NewReader("pdf"),
		Stdout: &out,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotName != "podman" {
		t.Errorf("binary = %q, want podman", gotName)
	}
	want := "run --rm -i -v /data/raw:/input:ro -v /tmp/out:/output " +
		"-e CUDA_VISIBLE_DEVICES= -e TORCH_DEVICE=cpu marker-pdf:latest /input/a.pdf --output_dir /output"
	if got := strings.Join(gotArgs, " "); got != want {
		t.Errorf("args:\n got %q\nwant %q", got, want)
	}
	if out.String() != "converted: pdf" {
		t.Errorf("stdout = %q", out.String())
	}
}

func TestRunArgs(t *testing.T) {
	exec := &mockExecutor{}
	tests := []struct {
		name string
		rt   *runtime
		opts RunOptions
		want string
	}{
		{"no stdin omits -i", newDockerRuntime(exec), RunOptions{Args: []string{"x"}}, "run --rm img x"},
		{"docker gpu", newDockerRuntime(exec), RunOptions{GPU: true}, "run --rm --gpus all img"},
		{"podman gpu", newPodmanRuntime(exec), RunOptions{GPU: true}, "run --rm --device nvidia.com/gpu=all img"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.rt.runArgs("img", tt.opts), " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRun_Failure(t *testing.T) {
	exec := &mockExecutor{
		runPipedFunc: func(string, []string, io.Reader, io.Writer) error {
			return errors.New("container exited with code 1")
		},
	}
	err := newDockerRuntime(exec).Run(context.Background(), "marker-pdf:latest", RunOptions{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "running docker container marker-pdf:latest") {
		t.Errorf("error should name runtime and image, got: %v", err)
	}
}

func TestRuntimeName(t *testing.T) {
	exec := &mockExecutor{}
	if got := newDockerRuntime(exec).Name(); got != "docker" {
		t.Errorf("docker runtime name = %q, want %q", got, "docker")
	}
	if got := newPodmanRuntime(exec).Name(); got != "podman" {
		t.Errorf("podman runtime name = %q, want %q", got, "podman")
	}
}
