package actions_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/voice/actions"
	"github.com/tailored-agentic-units/voice/dispatch"
)

var _ dispatch.Invoker = actions.Default

func okHandler(context.Context, actions.Call) error { return nil }

func TestRegister(t *testing.T) {
	tests := []struct {
		name         string
		capabilityID string
		wantErr      error
	}{
		{name: "valid action", capabilityID: "register-valid"},
		{name: "empty capability", capabilityID: "", wantErr: actions.ErrEmptyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := actions.Register(tt.capabilityID, "run", okHandler)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Register() unexpected error: %v", err)
			}
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	if err := actions.Register("register-duplicate", "run", okHandler); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}

	err := actions.Register("register-duplicate", "run", okHandler)
	if !errors.Is(err, actions.ErrAlreadyExists) {
		t.Errorf("second Register() error = %v, want %v", err, actions.ErrAlreadyExists)
	}
}

func TestReplace(t *testing.T) {
	if err := actions.Register("replace-existing", "run", okHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	boom := errors.New("boom")
	if err := actions.Replace("replace-existing", "run", func(context.Context, actions.Call) error { return boom }); err != nil {
		t.Fatalf("Replace() failed: %v", err)
	}

	if err := actions.Invoke(context.Background(), "replace-existing", "run"); !errors.Is(err, boom) {
		t.Errorf("Invoke() error = %v, want %v", err, boom)
	}

	if err := actions.Replace("replace-missing", "run", okHandler); !errors.Is(err, actions.ErrNotFound) {
		t.Errorf("Replace() error = %v, want %v", err, actions.ErrNotFound)
	}
}

func TestInvoke_AnyAction(t *testing.T) {
	var got actions.Call
	err := actions.Register("invoke-any", actions.Any, func(_ context.Context, c actions.Call) error {
		got = c
		return nil
	})
	if err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	if err := actions.Default.Invoke(context.Background(), "invoke-any", "dance"); err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if got.Action != "dance" || got.CapabilityID != "invoke-any" {
		t.Errorf("handler got %+v", got)
	}
}

func TestInvoke_NotFound(t *testing.T) {
	err := actions.Invoke(context.Background(), "invoke-missing", "run")
	if !errors.Is(err, actions.ErrNotFound) {
		t.Errorf("Invoke() error = %v, want %v", err, actions.ErrNotFound)
	}
}

func TestList_Sorted(t *testing.T) {
	for _, c := range []actions.Call{
		{CapabilityID: "list-b", Action: "x"},
		{CapabilityID: "list-a", Action: "y"},
		{CapabilityID: "list-a", Action: "x"},
	} {
		if err := actions.Register(c.CapabilityID, c.Action, okHandler); err != nil {
			t.Fatalf("Register() failed: %v", err)
		}
	}

	var listed []actions.Call
	for _, c := range actions.List() {
		if strings.HasPrefix(c.CapabilityID, "list-") {
			listed = append(listed, c)
		}
	}

	want := []actions.Call{
		{CapabilityID: "list-a", Action: "x"},
		{CapabilityID: "list-a", Action: "y"},
		{CapabilityID: "list-b", Action: "x"},
	}
	if len(listed) != len(want) {
		t.Fatalf("List() = %v, want %v", listed, want)
	}
	for i := range want {
		if listed[i] != want[i] {
			t.Errorf("List()[%d] = %v, want %v", i, listed[i], want[i])
		}
	}
}

func TestRegistry_Isolated(t *testing.T) {
	a := actions.NewRegistry()
	b := actions.NewRegistry()

	if err := a.Register("isolated", "run", okHandler); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := b.Register("isolated", "run", okHandler); err != nil {
		t.Errorf("Register() on a second registry failed: %v", err)
	}

	if err := a.Invoke(context.Background(), "isolated", "run"); err != nil {
		t.Errorf("Invoke() failed: %v", err)
	}
	if err := b.Invoke(context.Background(), "isolated", "walk"); !errors.Is(err, actions.ErrNotFound) {
		t.Errorf("Invoke() error = %v, want %v", err, actions.ErrNotFound)
	}
	if _, ok := actions.Get("isolated", "run"); ok {
		t.Error("Default registry sees a handler registered on a private registry")
	}
	if got := len(a.List()); got != 1 {
		t.Errorf("List() len = %d, want 1", got)
	}
}
