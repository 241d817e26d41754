package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestRegistryLastRegistrationWins(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	var called string
	if err := reg.Register("ping", NoArgs(func(context.Context) error { called = "first"; return nil })); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(" ping ", NoArgs(func(context.Context) error { called = "second"; return nil })); err != nil {
		t.Fatalf("register: %v", err)
	}
	h, ok := reg.Get("ping")
	if !ok {
		t.Fatal("ping not registered")
	}
	if err := h.Run(context.Background(), nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if called != "second" {
		t.Fatalf("called = %q, want second", called)
	}
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"ping"}) {
		t.Fatalf("Names = %v", got)
	}
}

func TestRegistryRejectsInvalid(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	if err := reg.Register("  ", NoArgs(func(context.Context) error { return nil })); err == nil {
		t.Fatal("empty name should be rejected")
	}
	if err := reg.Register("x", nil); err == nil {
		t.Fatal("nil handler should be rejected")
	}
	if err := reg.Register("x", HandlerFunc(nil)); err == nil {
		t.Fatal("nil HandlerFunc should be rejected")
	}
	if _, ok := reg.Get("x"); ok {
		t.Fatal("x should not be registered")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	for _, n := range []string{"notify", "ping", "backup"} {
		_ = reg.Register(n, NoArgs(func(context.Context) error { return nil }))
	}
	if got, want := reg.Names(), []string{"backup", "notify", "ping"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestHandlerReceivesArgsVerbatim(t *testing.T) {
	t.Parallel()
	var got json.RawMessage
	h := HandlerFunc(func(_ context.Context, args json.RawMessage) error {
		got = args
		return nil
	})
	in := json.RawMessage(`{"text":"hi","n":[1,2]}`)
	if err := h.Run(context.Background(), in); err != nil {
		t.Fatalf("run: %v", err)
	}
	if string(got) != string(in) {
		t.Fatalf("args = %s, want %s", got, in)
	}
}

func TestDecodeArgs(t *testing.T) {
	t.Parallel()
	type payload struct {
		Text string `json:"text"`
	}
	v, err := DecodeArgs[payload](json.RawMessage(`{"text":"hello"}`))
	if err != nil || v.Text != "hello" {
		t.Fatalf("DecodeArgs = %+v, %v", v, err)
	}
	v, err = DecodeArgs[payload](json.RawMessage(`null`))
	if err != nil || v.Text != "" {
		t.Fatalf("DecodeArgs(null) = %+v, %v", v, err)
	}
	if _, err := DecodeArgs[payload](json.RawMessage(`[1]`)); err == nil {
		t.Fatal("expected decode error")
	}
	wantErr := errors.New("boom")
	h := NoArgs(func(context.Context) error { return wantErr })
	if err := h.Run(context.Background(), json.RawMessage(`{}`)); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}
