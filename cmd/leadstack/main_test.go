package main

import (
	"os"
	"testing"
)

func TestPromptCredentials(t *testing.T) {
	restorePassword := readPassword
	readPassword = func(int) ([]byte, error) {
		return []byte("hunter2"), nil
	}
	defer func() { readPassword = restorePassword }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	restoreStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = restoreStdin }()
	if _, err := w.WriteString("Dana Reyes\ndana@x.com\n"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	creds, err := promptCredentials(true)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if creds.Name != "Dana Reyes" {
		t.Errorf("name = %q", creds.Name)
	}
	if creds.Email != "dana@x.com" {
		t.Errorf("email = %q", creds.Email)
	}
	if creds.Password != "hunter2" {
		t.Errorf("password = %q", creds.Password)
	}
}

func TestPromptCredentialsLoginSkipsName(t *testing.T) {
	restorePassword := readPassword
	readPassword = func(int) ([]byte, error) {
		return []byte("pw"), nil
	}
	defer func() { readPassword = restorePassword }()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	restoreStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = restoreStdin }()
	if _, err := w.WriteString("dana@x.com\n"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	creds, err := promptCredentials(false)
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	if creds.Name != "" {
		t.Errorf("name = %q", creds.Name)
	}
	if creds.Email != "dana@x.com" {
		t.Errorf("email = %q", creds.Email)
	}
}
